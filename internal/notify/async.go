package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type alert struct {
	key, text string
	jpeg      []byte
}

// Async hands alerts to a background sender so the caller never waits on
// the network. Alerts arriving while the queue is full are dropped.
type Async struct {
	next    Notifier
	log     zerolog.Logger
	queue   chan alert
	timeout time.Duration
	done    chan struct{}
}

// NewAsync creates a new asynchronous wrapper around next. Call Run to start delivery.
func NewAsync(next Notifier, log zerolog.Logger) *Async {
	return &Async{
		next:    next,
		log:     log,
		queue:   make(chan alert, 4),
		timeout: 30 * time.Second,
		done:    make(chan struct{}),
	}
}

// Notify queues the alert and returns immediately.
func (a *Async) Notify(_ context.Context, key, text string, jpeg []byte) error {
	select {
	case a.queue <- alert{key: key, text: text, jpeg: jpeg}:
	default:
		a.log.Warn().Str("key", key).Msg("alert queue full, dropping alert")
	}
	return nil
}

// Run delivers queued alerts until ctx is done.
func (a *Async) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case al := <-a.queue:
			sctx, cancel := context.WithTimeout(ctx, a.timeout)
			err := a.next.Notify(sctx, al.key, al.text, al.jpeg)
			cancel()
			switch {
			case err == nil:
				a.log.Info().Str("key", al.key).Msg("alert sent")
			case errors.Is(err, ErrCooldown):
				a.log.Debug().Str("key", al.key).Msg("alert suppressed by cooldown")
			default:
				a.log.Error().Err(err).Str("key", al.key).Msg("failed to send alert")
			}
		}
	}
}

// Done is closed when Run returns.
func (a *Async) Done() <-chan struct{} {
	return a.done
}
