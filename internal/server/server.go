// Package server is the WebSocket transport for the relay. It accepts
// connections, feeds decoded frames into the hub, and reports lifecycle
// events. All protocol decisions live in the relay package.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"cryptchat/internal/config"
	"cryptchat/internal/relay"
)

const (
	writeTimeout   = 10 * time.Second
	sendBufferSize = 32
)

var errSlowConnection = errors.New("connection too slow to keep up with messages")

// client adapts one websocket connection to the relay.Sender contract.
// Sends enqueue onto a buffered channel drained by a single writer
// goroutine, so a backpressured peer never blocks the goroutine pushing
// to it. A peer whose buffer fills up is closed.
type client struct {
	send      chan []byte
	closeSlow func()
}

func (c *client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		c.closeSlow()
		return errSlowConnection
	}
}

// Server accepts websocket connections and runs one read loop per
// connection.
type Server struct {
	hub        *relay.Hub
	cfg        *config.Config
	log        *zap.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, hub *relay.Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{hub: hub, cfg: cfg, log: log}
	s.httpServer = &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.ListenPort)),
		Handler: s.NewMux(),
	}
	return s
}

// NewMux returns the HTTP routing for the relay. Exported so tests can
// stand the full stack up under httptest.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	return mux
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	// Worst-case JSON escaping inflates each payload byte to a six-byte
	// \u00XX sequence; a payload at the configured maximum must still fit
	// in one frame, with room for the envelope on top.
	ws.SetReadLimit(int64(6*s.cfg.MaxEncryptedLength + 4096))

	connID := uuid.NewString()
	ctx := r.Context()
	cl := &client{
		send: make(chan []byte, sendBufferSize),
		closeSlow: func() {
			ws.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		},
	}

	if err := s.hub.HandleOpen(connID, cl); err != nil {
		ws.Close(websocket.StatusPolicyViolation, "server full")
		return
	}
	defer s.hub.HandleClose(connID)
	defer ws.Close(websocket.StatusInternalError, "connection handler exited")

	go writeLoop(ctx, ws, cl.send)

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			s.log.Debug("read loop ended", zap.String("conn", connID), zap.Error(err))
			return
		}
		s.hub.HandleMessage(connID, raw)
	}
}

// writeLoop drains one connection's send buffer in order. It exits when
// the connection's context ends or a write fails.
func writeLoop(ctx context.Context, ws *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case payload := <-send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Run serves until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	addr := s.httpServer.Addr
	if s.cfg.Protocol == config.ProtocolWSS {
		cert, err := tls.LoadX509KeyPair(s.cfg.SSLCertFile, s.cfg.SSLKeyFile)
		if err != nil {
			return fmt.Errorf("error loading TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		s.log.Info("server started", zap.String("url", fmt.Sprintf("wss://%s", addr)))
		err = s.httpServer.ListenAndServeTLS("", "")
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	s.log.Info("server started", zap.String("url", fmt.Sprintf("ws://%s", addr)))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits for in-flight
// handlers up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
