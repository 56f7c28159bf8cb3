package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/mmcdole/plexmirror/internal/domain"
)

const (
	// libraryIdentifier marks timeline entries produced by the media library
	libraryIdentifier = "com.plexapp.plugins.library"

	// Timeline states worth reacting to. Intermediate states (queued,
	// processing) are noise the debouncer would only have to discard.
	timelineStateFinished = 5
	timelineStateDeleted  = 9

	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = time.Minute
)

// EventListener streams library change notifications from the server's
// websocket feed and converts them to remote events.
type EventListener struct {
	baseURL  string
	token    string
	clientID string
	logger   *slog.Logger
}

func NewEventListener(baseURL, token, clientID string, logger *slog.Logger) *EventListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventListener{baseURL: baseURL, token: token, clientID: clientID, logger: logger}
}

// wsURL derives the notification endpoint from the server's HTTP base URL.
func (l *EventListener) wsURL() (string, error) {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/:/websockets/notifications"
	q := u.Query()
	q.Set("X-Plex-Token", l.token)
	q.Set("X-Plex-Client-Identifier", l.clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects to the notification feed and delivers events until the
// context is cancelled, reconnecting with backoff after any failure.
func (l *EventListener) Run(ctx context.Context, events chan<- domain.RemoteEvent) error {
	wsURL, err := l.wsURL()
	if err != nil {
		return err
	}

	delay := reconnectDelay
	for {
		err := l.listen(ctx, wsURL, events)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("notification feed dropped, reconnecting", "error", err, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (l *EventListener) listen(ctx context.Context, wsURL string, events chan<- domain.RemoteEvent) error {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	l.logger.Info("notification feed connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		for _, ev := range parseNotification(data) {
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// parseNotification extracts library timeline events from one websocket
// frame; anything else (playback progress, activity spam) yields nothing.
func parseNotification(data []byte) []domain.RemoteEvent {
	var env NotificationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	nc := env.NotificationContainer
	if !strings.EqualFold(nc.Type, "timeline") {
		return nil
	}

	now := time.Now()
	var out []domain.RemoteEvent
	for _, entry := range nc.TimelineEntries {
		if entry.Identifier != libraryIdentifier || entry.ItemID == 0 {
			continue
		}
		ev := domain.RemoteEvent{
			ID:        strconv.FormatInt(entry.ItemID, 10),
			Kind:      kindFromTypeCode(entry.Type),
			ArrivedAt: now,
		}
		switch entry.State {
		case timelineStateDeleted:
			ev.State = domain.EventDeleted
		case timelineStateFinished:
			ev.State = domain.EventUpdated
		default:
			continue
		}
		out = append(out, ev)
	}
	return out
}
