package ui

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_StartsScanning(t *testing.T) {
	stats := NewProgressTracker().Stats()

	assert.Equal(t, StageScanning, stats.Stage)
	assert.Zero(t, stats.Current)
	assert.Zero(t, stats.Progress)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_Progress(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		expected float64
	}{
		{"empty", 0, 100, 0},
		{"half", 50, 100, 0.5},
		{"done", 100, 100, 1},
		{"overshoot clamps", 120, 100, 1},
		{"unknown total", 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressTracker()
			p.SetStage(StageIndexing, tt.total)
			p.Update(tt.current, 0, "")
			assert.InDelta(t, tt.expected, p.Stats().Progress, 1e-9)
		})
	}
}

func TestProgressTracker_CurrentNeverMovesBackwards(t *testing.T) {
	// Given: workers reporting out of order
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 10)

	// When: a smaller count arrives after a larger one
	p.Update(7, 10, "b.go")
	p.Update(5, 10, "a.go")

	// Then: the larger count wins and the latest file is shown
	stats := p.Stats()
	assert.Equal(t, 7, stats.Current)
	assert.Equal(t, "a.go", stats.CurrentFile)
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	p := NewProgressTracker()
	p.Update(40, 50, "x.go")

	p.SetStage(StageIndexing, 20)

	stats := p.Stats()
	assert.Equal(t, StageIndexing, stats.Stage)
	assert.Equal(t, 20, stats.Total)
	assert.Zero(t, stats.Current)
	assert.Empty(t, stats.CurrentFile)
}

func TestProgressTracker_ErrorsAndWarnings(t *testing.T) {
	p := NewProgressTracker()

	p.AddError(ErrorEvent{File: "a.go", Err: errors.New("boom")})
	p.AddError(ErrorEvent{File: "b.go", Err: errors.New("meh"), IsWarn: true})

	stats := p.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
	assert.Len(t, p.Errors(), 1)
}

func TestProgressTracker_ETAAfterPartialProgress(t *testing.T) {
	// Given: a stage a quarter done after a short time
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 100)
	time.Sleep(20 * time.Millisecond)

	// When: progress is recorded
	p.Update(25, 100, "")

	// Then: the remaining time is extrapolated
	assert.Greater(t, p.Stats().ETA, time.Duration(0))
}

func TestProgressTracker_ConcurrentUpdates(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 1000)

	var wg sync.WaitGroup
	for i := 1; i <= 1000; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.Update(n, 1000, "f.go")
			_ = p.Stats()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, p.Stats().Current)
}
