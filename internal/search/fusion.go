package search

import (
	"sort"

	"github.com/Aman-CERP/semindex/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// candidate is a chunk seen by at least one of the two searches.
type candidate struct {
	id      string
	payload store.Payload

	vecScore float64
	vecRank  int // 1-indexed, 0 if absent from the vector list

	lexScore float64
	lexRank  int // 1-indexed, 0 if absent from the lexical list
	terms    []string

	score float64
}

func (c *candidate) inBoth() bool {
	return c.vecRank > 0 && c.lexRank > 0
}

// candidateSet merges both candidate lists, keyed by chunk id.
type candidateSet struct {
	byID   map[string]*candidate
	vecLen int
	lexLen int
}

func newCandidateSet(capacity int) *candidateSet {
	return &candidateSet{byID: make(map[string]*candidate, capacity)}
}

func (s *candidateSet) get(id string) *candidate {
	if c, ok := s.byID[id]; ok {
		return c
	}
	c := &candidate{id: id}
	s.byID[id] = c
	return c
}

func (s *candidateSet) addVector(matches []store.Match) {
	s.vecLen = len(matches)
	for rank, m := range matches {
		c := s.get(m.ID)
		c.payload = m.Payload
		c.vecScore = float64(m.Score)
		c.vecRank = rank + 1
	}
}

func (s *candidateSet) addLexical(hits []store.LexicalResult) {
	s.lexLen = len(hits)
	for rank, h := range hits {
		c := s.get(h.ID)
		c.lexScore = h.Score
		c.lexRank = rank + 1
		c.terms = h.MatchedTerms
	}
}

// lexicalOnly returns ids that need their payload fetched.
func (s *candidateSet) lexicalOnly() []string {
	var ids []string
	for id, c := range s.byID {
		if c.vecRank == 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// WeightedFusion scores w.Vector*cosine + w.Lexical*(lexical/maxLexical).
type WeightedFusion struct{}

func (WeightedFusion) score(s *candidateSet, w Weights) {
	var maxLex float64
	for _, c := range s.byID {
		if c.lexScore > maxLex {
			maxLex = c.lexScore
		}
	}
	for _, c := range s.byID {
		c.score = w.Vector * c.vecScore
		if maxLex > 0 && c.lexScore > 0 {
			c.score += w.Lexical * (c.lexScore / maxLex)
		}
	}
}

// RRFFusion combines the two rankings with Reciprocal Rank Fusion:
//
//	score(d) = Σ weight_i / (K + rank_i)
//
// A chunk absent from a list takes rank max(len(vector), len(lexical)) + 1
// in it. Scores are normalized so the best chunk scores 1.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion with smoothing constant k. If k <= 0,
// DefaultRRFConstant is used.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

func (f *RRFFusion) score(s *candidateSet, w Weights) {
	missing := max(s.vecLen, s.lexLen) + 1
	var best float64
	for _, c := range s.byID {
		vr, lr := c.vecRank, c.lexRank
		if vr == 0 {
			vr = missing
		}
		if lr == 0 {
			lr = missing
		}
		c.score = w.Vector/float64(f.K+vr) + w.Lexical/float64(f.K+lr)
		best = max(best, c.score)
	}
	if best == 0 {
		return
	}
	for _, c := range s.byID {
		c.score /= best
	}
}

// ranked returns the candidates ordered by:
// score (desc), present in both lists, lexical score (desc), chunk id.
func (s *candidateSet) ranked() []*candidate {
	out := make([]*candidate, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.inBoth() != b.inBoth() {
			return a.inBoth()
		}
		if a.lexScore != b.lexScore {
			return a.lexScore > b.lexScore
		}
		return a.id < b.id
	})
	return out
}

func (c *candidate) result() Result {
	return Result{
		ChunkID:      c.id,
		Path:         c.payload.Path,
		StartLine:    c.payload.StartLine,
		EndLine:      c.payload.EndLine,
		Category:     c.payload.Category,
		Language:     c.payload.Language,
		Content:      c.payload.Content,
		Score:        c.score,
		VectorScore:  c.vecScore,
		LexicalScore: c.lexScore,
		VectorRank:   c.vecRank,
		LexicalRank:  c.lexRank,
		MatchedTerms: c.terms,
	}
}
