// Package transport defines the delivery boundary between the posting
// pipeline and a concrete chat platform. The pipeline only ever sees the
// types here; platform-specific response classes stay in the adapter.
package transport

import "context"

// Target addresses a delivery: the main channel when ThreadID is zero,
// otherwise an existing thread rooted at that message.
type Target struct {
	ChatID   int64
	ThreadID int
}

// Thread returns a copy of t addressing the thread rooted at messageID.
func (t Target) Thread(messageID int) Target {
	t.ThreadID = messageID
	return t
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Result is the outcome of a delivery attempt. It is decided once at the
// adapter boundary: OK with a message ref, or a failure reason. Adapters
// never return platform errors past this type.
type Result struct {
	OK     bool
	Ref    MessageRef
	Reason string
}

func Delivered(ref MessageRef) Result { return Result{OK: true, Ref: ref} }
func Failed(reason string) Result     { return Result{Reason: reason} }

// Sender delivers one message carrying both representations. Adapters pick
// whichever their platform renders; the plain form must stand on its own.
type Sender interface {
	Send(ctx context.Context, to Target, plain, html string) Result
}
