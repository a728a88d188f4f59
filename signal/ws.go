package signal

import (
	"context"
	"errors"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func init() {
	factory := func(addr string) (Signaler, error) {
		return NewWebsocketSignaler(addr), nil
	}
	RegisterFactory("ws", factory)
	RegisterFactory("wss", factory)
}

// wsRequest is one operation sent to the server's /ws endpoint.
type wsRequest struct {
	Op      string `json:"op"`
	Address string `json:"address"`
	Data    string `json:"data,omitempty"`
}

// wsResponse is the server's reply to a wsRequest.
type wsResponse struct {
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// WebsocketSignaler talks to a rendezvous server's websocket endpoint. Each
// operation runs over its own short-lived connection, so a blocked Recv
// never holds up a Send.
type WebsocketSignaler struct {
	addr   string
	dialer *websocket.Dialer
}

// NewWebsocketSignaler creates a WebsocketSignaler for a server base URL
// like wss://signal.example.com.
func NewWebsocketSignaler(addr string) *WebsocketSignaler {
	return &WebsocketSignaler{
		addr:   strings.TrimSuffix(addr, "/"),
		dialer: websocket.DefaultDialer,
	}
}

func (s *WebsocketSignaler) Send(ctx context.Context, key, data string) error {
	log.Debug().Str("key", key).Msg("[ws] send")
	_, err := s.roundTrip(ctx, wsRequest{Op: "pub", Address: key, Data: data})
	return err
}

func (s *WebsocketSignaler) Recv(ctx context.Context, key string) (string, error) {
	log.Debug().Str("key", key).Msg("[ws] recv")
	resp, err := s.roundTrip(ctx, wsRequest{Op: "sub", Address: key})
	if err != nil {
		return "", err
	}
	log.Debug().Str("key", key).Str("data", resp.Data).Msg("[ws] received")
	return resp.Data, nil
}

func (s *WebsocketSignaler) roundTrip(ctx context.Context, req wsRequest) (wsResponse, error) {
	for {
		resp, retry, err := s.try(ctx, req)
		if err != nil {
			return wsResponse{}, err
		}
		if retry {
			continue
		}
		return resp, nil
	}
}

func (s *WebsocketSignaler) try(ctx context.Context, req wsRequest) (resp wsResponse, retry bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.addr+"/ws", nil)
	if err != nil {
		return wsResponse{}, false, err
	}
	defer conn.Close()

	// closing the socket unblocks ReadJSON when ctx ends first
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := conn.WriteJSON(req); err != nil {
		return wsResponse{}, false, err
	}
	if err := conn.ReadJSON(&resp); err != nil {
		if ctx.Err() != nil {
			return wsResponse{}, false, ctx.Err()
		}
		return wsResponse{}, false, err
	}
	if resp.Error == errNoMatch {
		return wsResponse{}, true, nil
	}
	if resp.Error != "" {
		return wsResponse{}, false, errors.New(resp.Error)
	}
	return resp, false, nil
}
