package profiles

import "context"

type opKind int

const (
	loadOp opKind = iota
	viewOp
)

func (k opKind) String() string {
	if k == loadOp {
		return "load"
	}
	return "view"
}

// pendingOp is an in-flight store call for one key. It resolves exactly once; every caller
// waiting on it receives the same result. A closed done channel with a nil profile and nil
// error means "resolved, record absent", as opposed to an open channel (unresolved).
type pendingOp[T any, M any] struct {
	kind    opKind
	done    chan struct{}
	profile *Profile[T, M]
	err     error
}

func newPendingOp[T any, M any](kind opKind) *pendingOp[T, M] {
	return &pendingOp[T, M]{
		kind: kind,
		done: make(chan struct{}),
	}
}

// resolve publishes the result and wakes up all waiters. Must be called once.
func (op *pendingOp[T, M]) resolve(p *Profile[T, M], err error) {
	op.profile = p
	op.err = err
	close(op.done)
}

// resolved reports whether resolve was called.
func (op *pendingOp[T, M]) resolved() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}

// wait blocks until the operation resolves or ctx is done.
func (op *pendingOp[T, M]) wait(ctx context.Context) (*Profile[T, M], error) {
	select {
	case <-op.done:
		return op.profile, op.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
