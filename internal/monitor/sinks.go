package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vigil/internal/database"
	"vigil/internal/notify"
	"vigil/internal/sleep"
	"vigil/internal/stream"
	"vigil/internal/ws"
)

// Sink consumes finished frames. OnFrame runs on the frame loop and must not block.
type Sink interface {
	OnFrame(ctx context.Context, res *FrameResult)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res *FrameResult)

// OnFrame calls f.
func (f SinkFunc) OnFrame(ctx context.Context, res *FrameResult) { f(ctx, res) }

// Sinks forwards each frame to every member in order.
type Sinks []Sink

// OnFrame forwards res to all sinks.
func (s Sinks) OnFrame(ctx context.Context, res *FrameResult) {
	for _, sink := range s {
		if sink != nil {
			sink.OnFrame(ctx, res)
		}
	}
}

// StreamSink publishes the rendered frame to MJPEG clients.
func StreamSink(b *stream.Broadcaster) Sink {
	return SinkFunc(func(_ context.Context, res *FrameResult) {
		b.Publish(res.Rendered)
	})
}

// StatusSink pushes status and events to websocket clients.
func StatusSink(hub *ws.Hub, sessionID string) Sink {
	return SinkFunc(func(_ context.Context, res *FrameResult) {
		msg := ws.NewStatusMessage(res.Mode, res.Seq, res.Timestamp)
		msg.SessionID = sessionID
		msg.Activity = res.Label
		msg.Confidence = res.Confidence
		msg.SleepState = res.Sleep.State.String()
		msg.PersonDetected = res.PersonDetected
		msg.FaceDetected = res.FaceDetected
		if res.FaceDetected {
			msg.SetEAR(res.Sleep.EAR)
		}
		hub.BroadcastStatus(msg)

		for _, ev := range res.Events {
			hub.BroadcastEvent(ws.NewEventMessage(ev.Kind, ev.From, ev.To, ev.Confidence, ev.Timestamp))
		}
	})
}

// EventStore is the part of the database the recorder writes to.
type EventStore interface {
	SaveEvent(e *database.Event) error
}

// Recorder persists state changes for one session.
type Recorder struct {
	store     EventStore
	sessionID string
	log       zerolog.Logger
}

// NewRecorder creates a new recorder for the session
func NewRecorder(store EventStore, sessionID string, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, sessionID: sessionID, log: log}
}

// OnFrame stores the frame's events. Write failures are logged, not fatal.
func (r *Recorder) OnFrame(_ context.Context, res *FrameResult) {
	for _, ev := range res.Events {
		kind := database.KindActivity
		if ev.Kind == KindSleep {
			kind = database.KindSleep
		}
		err := r.store.SaveEvent(&database.Event{
			SessionID:  r.sessionID,
			Timestamp:  ev.Timestamp,
			Kind:       kind,
			Label:      ev.To,
			Confidence: ev.Confidence,
			Detail:     ev.From,
		})
		if err != nil {
			r.log.Error().Err(err).Str("kind", ev.Kind).Str("to", ev.To).Msg("failed to record event")
		}
	}
}

// sleepAlertKey groups sleep alerts for the notifier cooldown.
const sleepAlertKey = "sleep"

// AlertSink notifies when the subject falls asleep, attaching the rendered frame.
func AlertSink(n notify.Notifier, log zerolog.Logger) Sink {
	return SinkFunc(func(ctx context.Context, res *FrameResult) {
		for _, ev := range res.Events {
			if ev.Kind != KindSleep || ev.To != sleep.Sleeping.String() {
				continue
			}
			if err := n.Notify(ctx, sleepAlertKey, sleepAlertText(ev, res), res.Rendered); err != nil {
				log.Warn().Err(err).Msg("sleep alert not sent")
			}
		}
	})
}

func sleepAlertText(ev Event, res *FrameResult) string {
	zoneName, _ := ev.Timestamp.Zone()
	return fmt.Sprintf(
		"😴 <b>Sleep detected</b>\n\n"+
			"👁 Eyes closed for %s\n"+
			"🕐 Time: %s %s",
		res.Sleep.ClosedFor.Round(time.Second),
		ev.Timestamp.Format("2 Jan 2006, 15:04:05"),
		zoneName,
	)
}
