// Package retry runs actions repeatedly, as directed by a chain of strategies.
//
// With no strategies, an action is retried in a tight loop until it succeeds.
// This is the behaviour the cluster lock relies on by default.
package retry

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retrier retries the provided action.
type Retrier interface {
	Retry(action Action) (uint, error)
}

type retrier struct {
	strategies []Strategy
}

// NewRetrier returns a Retrier bound to the provided strategies.
func NewRetrier(strategies ...Strategy) Retrier {
	return &retrier{
		strategies: strategies,
	}
}

func (r *retrier) Retry(action Action) (uint, error) {
	return Retry(action, r.strategies...)
}

// Retry executes action until it returns nil, or until one of the strategies
// rejects another attempt. It returns the number of attempts made, and the
// last error observed (nil on success).
//
// Strategies are consulted in order and evaluation stops at the first one that
// rejects, so strategies that sleep should be listed last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for attempts := uint(1); ; attempts++ {
		err := action()
		if err == nil {
			return attempts, nil
		}

		for _, s := range strategies {
			if !s(attempts, err) {
				return attempts, err
			}
		}
	}
}
