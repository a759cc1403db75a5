package watcher

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"create", OpCreate, "CREATE"},
		{"modify", OpModify, "MODIFY"},
		{"delete", OpDelete, "DELETE"},
		{"rename", OpRename, "RENAME"},
		{"gitignore", OpGitignoreChange, "GITIGNORE_CHANGE"},
		{"config", OpConfigChange, "CONFIG_CHANGE"},
		{"unknown", Operation(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	// When: getting default options
	opts := DefaultOptions()

	// Then: defaults are sensible
	assert.Equal(t, 200*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 2*time.Second, opts.PollInterval)
	assert.Equal(t, 1000, opts.EventBufferSize)
	assert.Equal(t, 256, opts.QueueSize)
	assert.Equal(t, min(runtime.NumCPU(), 8), opts.Workers)
	assert.LessOrEqual(t, opts.Workers, 8)
}

func TestOptions_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want Options
	}{
		{
			name: "empty options get defaults",
			opts: Options{},
			want: DefaultOptions(),
		},
		{
			name: "partial options keep custom values",
			opts: Options{DebounceWindow: 500 * time.Millisecond, Workers: 2},
			want: Options{
				DebounceWindow:  500 * time.Millisecond,
				PollInterval:    2 * time.Second,
				EventBufferSize: 1000,
				QueueSize:       256,
				Workers:         2,
			},
		},
		{
			name: "negative values are replaced",
			opts: Options{QueueSize: -1, PollInterval: -time.Second},
			want: DefaultOptions(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.WithDefaults()
			assert.Equal(t, tt.want.DebounceWindow, got.DebounceWindow)
			assert.Equal(t, tt.want.PollInterval, got.PollInterval)
			assert.Equal(t, tt.want.EventBufferSize, got.EventBufferSize)
			assert.Equal(t, tt.want.QueueSize, got.QueueSize)
			assert.Equal(t, tt.want.Workers, got.Workers)
			assert.NotNil(t, got.Logger)
		})
	}
}
