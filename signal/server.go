package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// maxMessageSize bounds a single signaling payload.
	maxMessageSize = 10 * 1024
	// matchWindow is how long the server holds one side of a handoff while
	// waiting for the other; clients retry after it lapses.
	matchWindow = 30 * time.Second

	// errNoMatch is the websocket-level analogue of the HTTP 504 the
	// long-poll endpoints return when the window lapses.
	errNoMatch = "no peer matched"
)

// Server is the rendezvous half of signaling. It never interprets payloads;
// it only pairs a publisher and a subscriber on the same address and hands
// the sealed message across. State is held in memory.
type Server struct {
	log      zerolog.Logger
	exchange *Exchange
	upgrader websocket.Upgrader
}

// NewServer creates a Server with its own Exchange.
func NewServer(lg zerolog.Logger) *Server {
	return &Server{
		log:      lg,
		exchange: NewExchange(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Close releases every peer parked in the exchange.
func (srv *Server) Close() error {
	return srv.exchange.Close()
}

// Register installs the signaling endpoints on r: long-poll /pub and /sub
// for HTTPSignaler and /ws for WebsocketSignaler.
func (srv *Server) Register(r gin.IRouter) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/pub", srv.handlePub)
	r.GET("/sub", srv.handleSub)
	r.GET("/ws", srv.handleWS)
}

func (srv *Server) handlePub(c *gin.Context) {
	address := c.Query("address")
	data := c.Query("data")
	if len(data) > maxMessageSize {
		srv.log.Warn().Str("remote-addr", c.Request.RemoteAddr).
			Str("address", address).
			Msg("data too large")
		c.String(http.StatusBadRequest, "data too large")
		return
	}

	srv.log.Info().Str("remote-addr", c.Request.RemoteAddr).
		Str("address", address).
		Msg("pub")

	ctx, cancel := context.WithTimeout(c.Request.Context(), matchWindow)
	defer cancel()

	if err := srv.exchange.Pub(ctx, address, data); err != nil {
		c.Status(http.StatusGatewayTimeout)
		return
	}
	c.Status(http.StatusOK)
}

func (srv *Server) handleSub(c *gin.Context) {
	address := c.Query("address")

	srv.log.Info().Str("remote-addr", c.Request.RemoteAddr).
		Str("address", address).
		Msg("sub")

	ctx, cancel := context.WithTimeout(c.Request.Context(), matchWindow)
	defer cancel()

	data, err := srv.exchange.Sub(ctx, address)
	if err != nil {
		c.Status(http.StatusGatewayTimeout)
		return
	}
	c.String(http.StatusOK, data)
}

// handleWS serves WebsocketSignaler clients: each JSON frame is one pub or
// sub operation answered with one response frame. Clients typically run one
// operation per connection, but the loop tolerates reuse.
func (srv *Server) handleWS(c *gin.Context) {
	ws, err := srv.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	for {
		var req wsRequest
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		if len(req.Data) > maxMessageSize {
			if err := ws.WriteJSON(wsResponse{Error: "data too large"}); err != nil {
				return
			}
			continue
		}

		srv.log.Info().Str("remote-addr", c.Request.RemoteAddr).
			Str("address", req.Address).
			Str("op", req.Op).
			Msg("ws")

		ctx, cancel := context.WithTimeout(context.Background(), matchWindow)
		resp := srv.serveOp(ctx, req)
		cancel()

		if err := ws.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (srv *Server) serveOp(ctx context.Context, req wsRequest) wsResponse {
	switch req.Op {
	case "pub":
		if err := srv.exchange.Pub(ctx, req.Address, req.Data); err != nil {
			return wsResponse{Error: errNoMatch}
		}
		return wsResponse{}
	case "sub":
		data, err := srv.exchange.Sub(ctx, req.Address)
		if err != nil {
			return wsResponse{Error: errNoMatch}
		}
		return wsResponse{Data: data}
	default:
		return wsResponse{Error: "unknown op"}
	}
}
