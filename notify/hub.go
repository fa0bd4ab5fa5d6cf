package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Hub exposes broker subscriptions over WebSocket. Clients connect via
// a plain HTTP upgrade, optionally pre-subscribing with one or more
// ?topic= query parameters, and manage their subscriptions with small
// JSON control frames:
//
//	{"action": "subscribe", "topic": "job:<uuid>"}
//	{"action": "unsubscribe", "topic": "job:<uuid>"}
//	{"action": "credits", "credits": 500}
//
// The server sends events encoded with the hub codec (JSON by default).
// Malformed control frames are logged and ignored; the event stream is
// the only server → client traffic.
type Hub struct {
	broker *Broker
	codec  Codec
	logger *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubCodec overrides the wire codec (default JSON).
func WithHubCodec(c Codec) HubOption {
	return func(h *Hub) { h.codec = c }
}

// WithHubLogger sets a custom logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a WebSocket hub serving the given broker.
func NewHub(b *Broker, opts ...HubOption) *Hub {
	h := &Hub{
		broker: b,
		codec:  &JSONCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// clientFrame is the control message clients send.
type clientFrame struct {
	Action  string `json:"action"`
	Topic   string `json:"topic,omitempty"`
	Credits int64  `json:"credits,omitempty"`
}

// ServeHTTP implements http.Handler by upgrading to WebSocket and
// running the subscriber session until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics, err := requestTopics(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	subID := uuid.NewString()
	sub := h.broker.Subscribe(subID, topics...)
	h.logger.Debug("subscriber connected",
		slog.String("subscriber_id", subID),
		slog.Any("topics", topics),
	)

	go h.run(conn, subID, sub)
}

// errSessionDone signals a clean end of a session loop so the errgroup
// context cancels and unblocks the sibling loop.
var errSessionDone = errors.New("notify: session done")

func (h *Hub) run(conn net.Conn, subID string, sub *Subscriber) {
	defer func() {
		h.broker.RemoveSubscriber(subID)
		conn.Close() //nolint:errcheck // tearing down
		h.logger.Debug("subscriber disconnected", slog.String("subscriber_id", subID))
	}()

	g, ctx := errgroup.WithContext(context.Background())

	// Unblock the reader when the writer (or the broker) is done.
	g.Go(func() error {
		<-ctx.Done()
		conn.Close() //nolint:errcheck // unblocks blocked reads
		return nil
	})

	// Reader: control frames from the client.
	g.Go(func() error {
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return errSessionDone
			}
			h.handleFrame(subID, data)
		}
	})

	// Writer: events to the client.
	g.Go(func() error {
		for evt := range sub.C() {
			data, err := h.codec.Encode(evt)
			if err != nil {
				h.logger.Warn("encode event failed",
					slog.String("subscriber_id", subID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return errSessionDone
			}
		}
		return errSessionDone
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errSessionDone) && !errors.Is(err, io.EOF) {
		h.logger.Warn("session ended with error",
			slog.String("subscriber_id", subID),
			slog.String("error", err.Error()),
		)
	}
}

// handleFrame applies one client control frame. Malformed frames are
// logged and ignored.
func (h *Hub) handleFrame(subID string, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.logger.Warn("malformed control frame",
			slog.String("subscriber_id", subID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch frame.Action {
	case "subscribe":
		if err := ValidateTopic(frame.Topic); err != nil {
			h.logger.Warn("subscribe to invalid topic",
				slog.String("subscriber_id", subID),
				slog.String("topic", frame.Topic),
			)
			return
		}
		h.broker.SubscribeTo(subID, frame.Topic)
	case "unsubscribe":
		h.broker.Unsubscribe(subID, frame.Topic)
	case "credits":
		if sub, ok := h.broker.GetSubscriber(subID); ok && frame.Credits > 0 {
			sub.AddCredits(frame.Credits)
		}
	default:
		h.logger.Warn("unknown control action",
			slog.String("subscriber_id", subID),
			slog.String("action", frame.Action),
		)
	}
}

// requestTopics parses and validates ?topic= query parameters.
func requestTopics(r *http.Request) ([]string, error) {
	topics := r.URL.Query()["topic"]
	for _, t := range topics {
		if err := ValidateTopic(t); err != nil {
			return nil, err
		}
	}
	return topics, nil
}
