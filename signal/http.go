package signal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

func init() {
	factory := func(addr string) (Signaler, error) {
		return NewHTTPSignaler(addr), nil
	}
	RegisterFactory("http", factory)
	RegisterFactory("https", factory)
}

// HTTPSignaler talks to a rendezvous server with plain HTTP long-polling:
// Send posts to /pub and Recv polls /sub. A 504 means no peer showed up
// within the server's matching window, so the operation retries until ctx
// expires.
type HTTPSignaler struct {
	addr   string
	client *http.Client
}

// NewHTTPSignaler creates an HTTPSignaler for a server base URL like
// https://signal.example.com.
func NewHTTPSignaler(addr string) *HTTPSignaler {
	return &HTTPSignaler{
		addr:   strings.TrimSuffix(addr, "/"),
		client: http.DefaultClient,
	}
}

func (s *HTTPSignaler) Send(ctx context.Context, key, data string) error {
	log.Debug().Str("key", key).Msg("[http] send")
	uv := url.Values{
		"address": {key},
		"data":    {data},
	}
	for {
		status, _, err := s.get(ctx, "/pub?"+uv.Encode())
		if err != nil {
			return err
		}
		if status == http.StatusGatewayTimeout {
			continue
		}
		if status != http.StatusOK {
			return fmt.Errorf("signal server: unexpected status %d", status)
		}
		return nil
	}
}

func (s *HTTPSignaler) Recv(ctx context.Context, key string) (string, error) {
	log.Debug().Str("key", key).Msg("[http] recv")
	uv := url.Values{
		"address": {key},
	}
	for {
		status, body, err := s.get(ctx, "/sub?"+uv.Encode())
		if err != nil {
			return "", err
		}
		if status == http.StatusGatewayTimeout {
			continue
		}
		if status != http.StatusOK {
			return "", fmt.Errorf("signal server: unexpected status %d", status)
		}
		log.Debug().Str("key", key).Str("data", body).Msg("[http] received")
		return body, nil
	}
}

func (s *HTTPSignaler) get(ctx context.Context, path string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.addr+path, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(bs), nil
}
