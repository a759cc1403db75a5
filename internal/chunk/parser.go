package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// parserPool reuses tree-sitter parsers across files. A parser is not safe
// for concurrent use, so each Chunk call borrows its own.
var parserPool = sync.Pool{
	New: func() any { return sitter.NewParser() },
}

// parseBoundaries returns the zero-based start lines of top-level
// declarations. Preceding comment siblings are folded into the declaration
// they annotate. A syntax error anywhere in the file is reported so the
// caller can fall back to line markers.
func parseBoundaries(ctx context.Context, spec *languageSpec, content []byte) ([]int, error) {
	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)

	parser.SetLanguage(spec.grammar())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", spec.name, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: nil tree", spec.name)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parse %s: syntax error", spec.name)
	}

	var starts []int
	commentStart := -1
	prevEnd := -1
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		node := root.NamedChild(i)
		if node == nil {
			continue
		}
		row := int(node.StartPoint().Row)
		if node.Type() == "comment" {
			// A blank line between comment and declaration detaches it.
			if commentStart < 0 || row > prevEnd+1 {
				commentStart = row
			}
			prevEnd = int(node.EndPoint().Row)
			continue
		}
		if spec.declTypes[node.Type()] {
			start := row
			if commentStart >= 0 && row <= prevEnd+1 {
				start = commentStart
			}
			starts = append(starts, start)
		}
		commentStart = -1
		prevEnd = int(node.EndPoint().Row)
	}
	return starts, nil
}
