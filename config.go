package profiles

import (
	"log/slog"
	"time"

	"github.com/sharedcode/profiles/encoding"
)

const (
	// DefaultRetryDelay is the delay before the first LoadExclusive retry. Each further retry doubles it.
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultRetryWarnAfter is the retry delay above which a warning is logged.
	DefaultRetryWarnAfter = 500 * time.Millisecond
	// DefaultSlowOperation is the elapsed time above which a completed load or view is logged as a warning.
	DefaultSlowOperation = 5 * time.Second
	// DefaultMaxConcurrency caps the store calls SaveAll, UnloadAll and Refresh issue at once.
	DefaultMaxConcurrency = 8
)

// ManagerOptions configures a Manager.
type ManagerOptions[T any] struct {
	// StoreName is the logical store the manager is bound to. Required.
	StoreName string
	// Template is the default payload. Fields it has and a stored payload lacks are filled in on load.
	// It must encode to a JSON object.
	Template T

	// RetryDelay is the delay before the first retry of a failed exclusive load.
	RetryDelay time.Duration
	// MaxRetryDelay caps the retry delay. Zero leaves the backoff uncapped.
	MaxRetryDelay time.Duration
	// RetryWarnAfter is the retry delay above which each retry is logged as a warning.
	RetryWarnAfter time.Duration
	// SlowOperation is the elapsed time above which a completed load or view is logged as a warning.
	SlowOperation time.Duration
	// MaxConcurrency caps the parallel store calls of the bulk operations.
	MaxConcurrency int

	// Reconciler merges the template into loaded payloads. Defaults to ReconcileJSON.
	Reconciler Reconciler
	// Validator, when set, vets every payload before Save persists it.
	Validator Validator
	// Marshaler encodes T. Defaults to encoding.DefaultMarshaler.
	Marshaler encoding.Marshaler
	// Logger receives the manager's diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Metrics, when set, is updated by every operation.
	Metrics *Metrics
	// OnSessionLost is called with the key of a loaded profile whose session was found lost.
	OnSessionLost func(key string)
}

func (o *ManagerOptions[T]) applyDefaults() {
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.RetryWarnAfter <= 0 {
		o.RetryWarnAfter = DefaultRetryWarnAfter
	}
	if o.SlowOperation <= 0 {
		o.SlowOperation = DefaultSlowOperation
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.Reconciler == nil {
		o.Reconciler = ReconcileJSON
	}
	if o.Marshaler == nil {
		o.Marshaler = encoding.DefaultMarshaler
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// AutosaveOptions configures Manager.Run.
type AutosaveOptions struct {
	// Interval between two autosave rounds. Defaults to one minute.
	Interval time.Duration
}
