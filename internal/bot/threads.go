package bot

import (
	"context"

	"dealsbot/internal/compose"
	"dealsbot/internal/deal"
	"dealsbot/internal/storage"
	"dealsbot/internal/transport"
	"dealsbot/pkg/logx"
)

// Router maps categories to durable thread roots. A root is created on the
// first candidate of its category: the root message is delivered to the
// main channel and its message ID persisted as the thread handle. Persisted
// mappings are trusted for the lifetime of the store.
//
// Routing is best-effort by contract: (0, false) tells the coordinator to
// deliver to the main channel instead. Threading is presentation, never a
// prerequisite for delivery.
type Router struct {
	store storage.Store
	send  transport.Sender
	main  transport.Target
	log   logx.Logger
}

func NewRouter(store storage.Store, send transport.Sender, main transport.Target, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{store: store, send: send, main: main, log: log}
}

// Route returns the thread-root message ID for a category, creating the
// root on first use.
func (r *Router) Route(ctx context.Context, cat deal.Category) (int, bool) {
	id, ok, err := r.store.Thread(ctx, cat)
	if err != nil {
		r.log.Warn("thread lookup failed; falling back to main channel",
			logx.String("category", string(cat)), logx.Err(err))
		return 0, false
	}
	if ok {
		return id, true
	}

	msg := compose.ThreadRoot(cat)
	res := r.send.Send(ctx, r.main, msg.Plain, msg.HTML)
	if !res.OK {
		// No mapping is persisted for a root that was never created; the
		// next candidate of this category retries.
		r.log.Warn("thread root creation failed",
			logx.String("category", string(cat)), logx.String("reason", res.Reason))
		return 0, false
	}

	if err := r.store.PutThread(ctx, cat, res.Ref.MessageID); err != nil {
		// The root exists, so use it for this cycle even though the
		// mapping didn't stick. A later cycle may create a second root.
		r.log.Warn("thread mapping persist failed",
			logx.String("category", string(cat)), logx.Err(err))
		return res.Ref.MessageID, true
	}

	r.log.Info("thread root created",
		logx.String("category", string(cat)), logx.Int("message_id", res.Ref.MessageID))
	return res.Ref.MessageID, true
}
