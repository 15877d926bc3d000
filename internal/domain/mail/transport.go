package mail

import (
	"context"
	"errors"
)

// ErrTransportFailure marks a failed or timed-out send. Nothing is known to
// have been delivered.
var ErrTransportFailure = errors.New("mail transport failure")

// Transport sends a single message. It makes no delivery guarantee beyond
// "attempted"; implementations honour ctx deadlines.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}
