package ui

import (
	"errors"
	"sync"
	"time"
)

var errFileFailed = errors.New("indexing failed")

// etaSmoothingFactor weights a new ETA sample against the previous one.
const etaSmoothingFactor = 0.3

// rateWindow is the minimum interval between throughput samples.
const rateWindow = 500 * time.Millisecond

// ProgressTracker holds progress state. It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent
	lastETA     time.Duration

	lastCurrent int
	lastSample  time.Time
	rate        float64 // files per second, smoothed
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	Rate        float64
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

// NewProgressTracker creates a tracker in StageScanning.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startTime:  now,
		stageStart: now,
		lastSample: now,
	}
}

// SetStage moves to stage with the given total and resets counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = now
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSample = now
	p.rate = 0
}

// Update records progress within the current stage. Workers report out of
// order, so current never moves backwards.
func (p *ProgressTracker) Update(current, total int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if total > 0 {
		p.total = total
	}
	if current > p.current {
		p.current = current
	}
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	if elapsed := now.Sub(p.lastSample); elapsed >= rateWindow {
		if delta := p.current - p.lastCurrent; delta > 0 {
			sample := float64(delta) / elapsed.Seconds()
			if p.rate == 0 {
				p.rate = sample
			} else {
				p.rate = 0.2*sample + 0.8*p.rate
			}
		}
		p.lastCurrent = p.current
		p.lastSample = now
	}
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.startTime)
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		ETA:         p.eta(),
		Rate:        p.rate,
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
	}
}

// Errors returns a copy of the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// eta extrapolates the remaining time from stage progress, smoothed
// exponentially. Callers hold mu.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	fraction := float64(p.current) / float64(p.total)
	remaining := time.Duration(float64(elapsed)/fraction) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
