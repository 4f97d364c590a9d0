package extract

import (
	"context"
	"time"
)

// WorkItem is one configured target: the page to render and the label used
// to name its output artifact.
type WorkItem struct {
	URL   string `mapstructure:"url" json:"url" yaml:"url" validate:"required,url"`
	Label string `mapstructure:"label" json:"label" yaml:"label" validate:"required,label"`
}

// State is the pipeline lifecycle state for a single WorkItem.
type State string

// Pipeline states. Succeeded, Exhausted and Rejected are terminal.
const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateSucceeded  State = "succeeded"
	StateExhausted  State = "exhausted"
	StateRejected   State = "rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExhausted, StateRejected:
		return true
	default:
		return false
	}
}

// AttemptOutcome records how one end-to-end attempt ended.
type AttemptOutcome struct {
	Attempt   int
	Succeeded bool
	Err       error
}

// ItemResult is produced exactly once per WorkItem.
type ItemResult struct {
	Label     string        `json:"label" yaml:"label"`
	URL       string        `json:"url" yaml:"url"`
	Succeeded bool          `json:"succeeded" yaml:"succeeded"`
	State     State         `json:"state" yaml:"state"`
	Attempts  int           `json:"attempts" yaml:"attempts"`
	Artifact  string        `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Bytes     int           `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	SHA256    string        `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`
	Err       error         `json:"-" yaml:"-"`
}

// Failed builds a failed result for item with the given terminal state.
func Failed(item WorkItem, state State, attempts int, err error) ItemResult {
	res := ItemResult{
		Label:    item.Label,
		URL:      item.URL,
		State:    state,
		Attempts: attempts,
		Err:      err,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Artifact describes a persisted output file.
type Artifact struct {
	Path   string
	Bytes  int
	SHA256 string
}

// Succeeded builds a successful result for item.
func Succeeded(item WorkItem, attempts int, a Artifact) ItemResult {
	return ItemResult{
		Label:     item.Label,
		URL:       item.URL,
		Succeeded: true,
		State:     StateSucceeded,
		Attempts:  attempts,
		Artifact:  a.Path,
		Bytes:     a.Bytes,
		SHA256:    a.SHA256,
	}
}

// Renderer loads a URL in a browser and returns the rendered markup.
type Renderer interface {
	Render(ctx context.Context, rawURL string, timeout time.Duration) (string, error)
}

// Sanitizer strips non-content nodes and isolates the primary region.
type Sanitizer interface {
	Sanitize(markup string) string
}

// Transformer converts sanitized markup into the output text format.
type Transformer interface {
	Transform(markup string) string
}

// Persister writes transformed content under a label.
type Persister interface {
	Persist(ctx context.Context, label string, content string) (Artifact, error)
}

// Sleeper blocks for a backoff interval or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for persisted artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
