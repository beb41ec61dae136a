package reconcile

import "fmt"

// SendError reports a rejected outbound send. The optimistic message has
// already been rolled back when the caller sees it; retry is the
// caller's decision.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message: %v", e.Cause)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}
