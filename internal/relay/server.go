// Package relay hosts the local WebSocket control endpoint. External
// front ends (the CLI's stop command, a popup-style UI) connect to it,
// issue JSON-RPC commands against the running automation, and receive
// status notifications as they happen.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const protocolVersion = 1

var ErrNotListening = errors.New("relay server is not listening")

// CommandHandler executes one inbound control command.
type CommandHandler interface {
	HandleCommand(ctx context.Context, method string, params json.RawMessage) (any, error)
}

type Config struct {
	ListenAddr string
	Token      string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.ListenAddr = strings.TrimSpace(out.ListenAddr)
	out.Token = strings.TrimSpace(out.Token)
	if out.ListenAddr == "" {
		out.ListenAddr = "127.0.0.1:17713"
	}
	if out.Timeout <= 0 {
		out.Timeout = 15 * time.Second
	}
	return out
}

type Server struct {
	cfg     Config
	handler CommandHandler
	log     zerolog.Logger

	mu      sync.RWMutex
	ln      net.Listener
	httpSrv *http.Server
	addr    string
	conns   map[*websocket.Conn]*sync.Mutex
}

func NewServer(cfg Config, handler CommandHandler, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		handler: handler,
		log:     log,
		conns:   make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start binds the listener. The address must be loopback: the control
// endpoint carries no transport security beyond the shared token.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid control listen addr %q: %w", cfg.ListenAddr, err)
	}
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return fmt.Errorf("control listen addr must bind to loopback, got %q", cfg.ListenAddr)
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", cfg.ListenAddr, err)
	}
	addr := ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.httpSrv = httpSrv
	s.addr = addr
	s.mu.Unlock()

	go func() {
		_ = httpSrv.Serve(ln)
	}()

	s.log.Info().Str("addr", addr).Msg("control endpoint listening")
	return nil
}

func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	conns := s.conns
	s.httpSrv = nil
	s.ln = nil
	s.addr = ""
	s.conns = make(map[*websocket.Conn]*sync.Mutex)
	s.mu.Unlock()

	for conn := range conns {
		_ = conn.Close()
	}
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

type helloMessage struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Client  string `json:"client,omitempty"`
	Version int    `json:"version,omitempty"`
}

type welcomeMessage struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if err := s.accept(conn); err != nil {
		s.log.Warn().Err(err).Msg("control client rejected")
		_ = conn.Close()
	}
}

func (s *Server) accept(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var hello helloMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}
	if strings.ToLower(strings.TrimSpace(hello.Type)) != "hello" {
		return fmt.Errorf("expected hello, got %q", hello.Type)
	}
	if s.cfg.Token != "" && hello.Token != s.cfg.Token {
		return errors.New("unauthorized")
	}

	_ = conn.SetReadDeadline(time.Time{})
	writeMu := &sync.Mutex{}
	if err := writeJSON(conn, writeMu, welcomeMessage{Type: "welcome", Version: protocolVersion}); err != nil {
		return err
	}
	// Each client gets the readiness event the moment it joins, so late
	// connectors see the driver is attached without probing.
	if err := writeJSON(conn, writeMu, rpcNotification{JSONRPC: "2.0", Method: "contentScriptReady"}); err != nil {
		return err
	}

	s.mu.Lock()
	s.conns[conn] = writeMu
	s.mu.Unlock()
	s.log.Debug().Str("client", hello.Client).Msg("control client connected")

	go s.readLoop(conn, writeMu)
	return nil
}

func (s *Server) readLoop(conn *websocket.Conn, writeMu *sync.Mutex) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil || req.ID == "" || req.Method == "" {
			continue
		}

		go s.dispatch(conn, writeMu, req)
	}
}

func (s *Server) dispatch(conn *websocket.Conn, writeMu *sync.Mutex, req rpcRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	result, err := s.handler.HandleCommand(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}

	if err := writeJSON(conn, writeMu, resp); err != nil {
		s.log.Warn().Err(err).Str("method", req.Method).Msg("control response write failed")
	}
}

// Notify broadcasts an event to every connected control client.
func (s *Server) Notify(method string, params any) {
	note := rpcNotification{JSONRPC: "2.0", Method: method, Params: params}

	s.mu.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(s.conns))
	for conn, mu := range s.conns {
		conns[conn] = mu
	}
	s.mu.RUnlock()

	for conn, mu := range conns {
		if err := writeJSON(conn, mu, note); err != nil {
			s.log.Debug().Err(err).Str("method", method).Msg("notification write failed")
		}
	}
}

func writeJSON(conn *websocket.Conn, mu *sync.Mutex, v any) error {
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}
