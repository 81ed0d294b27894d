package messenger

import "context"

// Sender is the outbound capability of a messaging transport. Send failures
// are returned to the caller; typing indicators are best effort and never
// produce an error.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
	SetTyping(ctx context.Context, userID string, typing bool)
}
