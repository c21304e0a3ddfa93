package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/drawserver/broadcast"
	"github.com/wfunc/drawserver/config"
	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/session"
)

// Inbox accepts inbound traffic for serialized processing.
// dispatch.Dispatcher implements it.
type Inbox interface {
	Submit(connID string, packet *network.Packet)
	SubmitDisconnect(connID string)
}

type Options struct {
	Config   config.ServerConfig
	Limits   session.Limits
	Sessions *session.Manager
	Inbox    Inbox
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type GameServer struct {
	cfg          config.ServerConfig
	limits       session.Limits
	upgrader     websocket.Upgrader
	sessions     *session.Manager
	inbox        Inbox
	router       chi.Router
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(opts Options) *GameServer {
	s := &GameServer{
		cfg:          opts.Config,
		limits:       opts.Limits,
		sessions:     opts.Sessions,
		inbox:        opts.Inbox,
		shutdownChan: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	s.router = r

	s.httpServer = &http.Server{
		Addr:    opts.Config.HTTPAddress,
		Handler: r,
	}
	return s
}

func (s *GameServer) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Shutdown.
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every live connection.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	err := s.httpServer.Shutdown(ctx)
	s.sessions.CloseAll()
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logger.Log.Warnf("Rejected WebSocket from origin %s", origin)
	return false
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdownChan:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.cfg.HeartbeatInterval)
	sess := session.NewSession(uuid.New().String(), wsConn, s.cfg.SendQueueSize, s.limits)
	s.sessions.Add(sess)
	go sess.WritePump()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessions.Remove(sess.GetID())
		s.inbox.SubmitDisconnect(sess.GetID())
		sess.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-sess.Done():
			return
		default:
		}

		packet, err := wsConn.ReadPacket()
		if err != nil {
			logger.Log.Debugf("Session %s read ended: %v", sess.GetID(), err)
			return
		}
		wsConn.SetHeartbeat(s.cfg.HeartbeatInterval)
		sess.Touch()

		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch {
	case packet.MsgID == network.MsgTypeHeartbeat:
		sess.Enqueue(network.MsgTypeHeartbeat, nil)
	case !sess.Allow(packet.MsgID):
		logger.Log.Debugf("Session %s rate limited on msg %d", sess.GetID(), packet.MsgID)
		data, _ := broadcast.Encode(network.ErrorNotice{Code: "rate_limited", Message: "slow down"})
		sess.Enqueue(network.MsgTypeErrorNotice, data)
	default:
		s.inbox.Submit(sess.GetID(), packet)
	}
}
