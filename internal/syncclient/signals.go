package syncclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// SignalSource connects to a session's room. The returned channel yields
// one value per signal and is closed when the connection drops.
type SignalSource interface {
	Connect(ctx context.Context, sessionID string) (<-chan struct{}, error)
}

// WSSource receives room signals over the service's websocket endpoint.
type WSSource struct {
	url    func(sessionID string) string
	header http.Header
	dialer *websocket.Dialer
}

// NewWSSource builds a source for c's server and identity.
func NewWSSource(c *Client) *WSSource {
	return &WSSource{
		url:    c.SignalURL,
		header: c.Header(),
		dialer: websocket.DefaultDialer,
	}
}

func (s *WSSource) Connect(ctx context.Context, sessionID string) (<-chan struct{}, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url(sessionID), s.header)
	if err != nil {
		return nil, fmt.Errorf("dial signals: %w", err)
	}

	signals := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(signals)
		defer close(done)
		defer conn.Close()
		for {
			var msg struct {
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "session_updated" {
				continue
			}
			// Coalesce: one pending signal already means "refetch".
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()
	return signals, nil
}
