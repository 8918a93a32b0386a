package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vigil/internal/database"
	"vigil/internal/ws"
)

// StatusSource yields the most recent per-frame status.
type StatusSource interface {
	Latest() *ws.StatusMessage
}

// FrameSource yields the most recent rendered frame.
type FrameSource interface {
	Latest() ([]byte, uint64)
}

// EventSource lists a session's recorded events.
type EventSource interface {
	ListEvents(sessionID string, since time.Time, limit int) ([]*database.Event, error)
}

// update is a Telegram getUpdates entry.
type update struct {
	UpdateID int64          `json:"update_id"`
	Message  *updateMessage `json:"message,omitempty"`
}

type updateMessage struct {
	MessageID int64  `json:"message_id"`
	Chat      *chat  `json:"chat,omitempty"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

type chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Result      []update `json:"result,omitempty"`
	ErrorCode   int      `json:"error_code,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Commands answers bot commands from the configured chat. Events and
// SessionID may be left empty when the event store is disabled.
type Commands struct {
	tg        *Telegram
	status    StatusSource
	frames    FrameSource
	events    EventSource
	sessionID string
	log       zerolog.Logger

	interval     time.Duration
	lastUpdateID int64
	startTime    time.Time
}

// NewCommands creates a new command handler on top of tg.
func NewCommands(tg *Telegram, status StatusSource, frames FrameSource, events EventSource, sessionID string, log zerolog.Logger) *Commands {
	return &Commands{
		tg:        tg,
		status:    status,
		frames:    frames,
		events:    events,
		sessionID: sessionID,
		log:       log,
		interval:  2 * time.Second,
		startTime: tg.now(),
	}
}

// Run polls for updates until ctx is done.
func (c *Commands) Run(ctx context.Context) error {
	if !c.tg.IsEnabled() {
		return fmt.Errorf("telegram bot is disabled")
	}

	c.log.Info().Msg("telegram command polling started")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("telegram command polling stopped")
			return nil
		case <-ticker.C:
			if err := c.poll(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("failed to poll telegram updates")
			}
		}
	}
}

// poll fetches pending updates once and handles them.
func (c *Commands) poll(ctx context.Context) error {
	url := fmt.Sprintf("%s?offset=%d&timeout=1", c.tg.methodURL("getUpdates"), c.lastUpdateID+1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.tg.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch updates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	var ur updatesResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !ur.OK {
		return fmt.Errorf("telegram API error %d: %s", ur.ErrorCode, ur.Description)
	}

	for _, u := range ur.Result {
		if u.UpdateID > c.lastUpdateID {
			c.lastUpdateID = u.UpdateID
		}
		if u.Message != nil {
			c.handle(ctx, u.Message)
		}
	}
	return nil
}

func (c *Commands) handle(ctx context.Context, msg *updateMessage) {
	if msg.Chat == nil || strconv.FormatInt(msg.Chat.ID, 10) != c.tg.chatID {
		c.log.Debug().Msg("ignoring message from unauthorized chat")
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return
	}
	// "/status@vigil_bot" in group chats
	command, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	var (
		reply string
		err   error
	)
	switch command {
	case "/start":
		reply = "👁 <b>vigil</b>\n\nI'll tell you when the person I'm watching falls asleep.\n\nUse /help to see available commands."
	case "/help":
		reply = "📋 <b>Available Commands</b>\n\n" +
			"/status - Current activity and sleep state\n" +
			"/snapshot - Latest annotated frame\n" +
			"/events [limit] - Recent activity and sleep changes\n" +
			"/help - Show this help"
	case "/status":
		reply = c.statusText()
	case "/snapshot":
		frame, _ := c.frames.Latest()
		if frame == nil {
			reply = "No frame available yet."
			break
		}
		err = c.tg.sendPhoto(ctx, frame, "📷 Latest frame")
	case "/events":
		reply = c.eventsText(args)
	default:
		reply = "Unknown command. Use /help to see available commands."
	}

	if err == nil && reply != "" {
		err = c.tg.sendMessage(ctx, reply)
	}
	if err != nil {
		c.log.Error().Err(err).Str("command", command).Msg("failed to answer command")
	}
}

func (c *Commands) statusText() string {
	uptime := formatDuration(c.tg.now().Sub(c.startTime))
	st := c.status.Latest()
	if st == nil {
		return fmt.Sprintf("📊 <b>Status</b>\n\nNo frame processed yet.\nUptime: %s", uptime)
	}

	var b strings.Builder
	b.WriteString("📊 <b>Status</b>\n\n")
	if st.Mode == "activity" {
		fmt.Fprintf(&b, "Activity: <b>%s</b> (%.2f)\n", html.EscapeString(st.Activity), st.Confidence)
	}
	fmt.Fprintf(&b, "Sleep: <b>%s</b>\n", st.SleepState)
	if st.EAR != nil {
		fmt.Fprintf(&b, "EAR: %.3f\n", *st.EAR)
	}
	fmt.Fprintf(&b, "Frames: %d\nUptime: %s", st.FrameSeq, uptime)
	return b.String()
}

func (c *Commands) eventsText(args []string) string {
	if c.events == nil || c.sessionID == "" {
		return "Event recording is disabled."
	}
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	events, err := c.events.ListEvents(c.sessionID, time.Time{}, 0)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to list events")
		return "Failed to load events."
	}
	if len(events) == 0 {
		return "No events recorded yet."
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🕐 <b>Last %d events</b>\n\n", len(events))
	for _, e := range events {
		fmt.Fprintf(&b, "%s  %s → <b>%s</b>\n",
			e.Timestamp.Local().Format("15:04:05"), html.EscapeString(e.Detail), html.EscapeString(e.Label))
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
