package spaserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/odin-fire/odin-go/actor"
	"github.com/odin-fire/odin-go/internal/idgen"
)

// ServerConfig bounds the SPA Server's listener, TLS, and per-connection
// tuning, loaded from internal/config (viper) in cmd/odind.
type ServerConfig struct {
	Name string
	Addr string

	// TLSCertFile/TLSKeyFile may contain ${VAR} references, expanded against
	// the process environment at Start time (see expandEnv), mirroring the
	// original ODIN server's path configuration.
	TLSCertFile string
	TLSKeyFile  string

	ConnBufferSize           int
	WebsocketReadBufferSize  int
	WebsocketWriteBufferSize int

	ProxyTimeout time.Duration
}

// DefaultServerConfig fills in the bounds the teacher's own HTTP service
// ships with.
func DefaultServerConfig(name, addr string) ServerConfig {
	return ServerConfig{
		Name:                     name,
		Addr:                     addr,
		ConnBufferSize:           256,
		WebsocketReadBufferSize:  4096,
		WebsocketWriteBufferSize: 4096,
		ProxyTimeout:             10 * time.Second,
	}
}

func expandEnv(path string) string {
	if path == "" {
		return path
	}
	return os.Expand(path, func(key string) string { return os.Getenv(key) })
}

// --- messages -------------------------------------------------------------

type dataAvailableMsg struct {
	senderID, dataType string
}

func (dataAvailableMsg) Kind() actor.Kind { return actor.KindUser }

type broadcastWsMsg struct{ modPath, msgType string; payload json.RawMessage }

func (broadcastWsMsg) Kind() actor.Kind { return actor.KindUser }

type sendWsMsg struct {
	connID            string
	modPath, msgType  string
	payload           json.RawMessage
}

func (sendWsMsg) Kind() actor.Kind { return actor.KindUser }

type sendAllOthersWsMsg struct {
	exceptConnID      string
	modPath, msgType  string
	payload           json.RawMessage
}

func (sendAllOthersWsMsg) Kind() actor.Kind { return actor.KindUser }

type sendGroupWsMsg struct {
	group             string
	modPath, msgType  string
	payload           json.RawMessage
}

func (sendGroupWsMsg) Kind() actor.Kind { return actor.KindUser }

type addConnectionMsg struct {
	id   string
	conn *Connection
}

func (addConnectionMsg) Kind() actor.Kind { return actor.KindUser }

type removeConnectionMsg struct{ id string }

func (removeConnectionMsg) Kind() actor.Kind { return actor.KindUser }

type joinGroupMsg struct{ id, group string }

func (joinGroupMsg) Kind() actor.Kind { return actor.KindUser }

type leaveGroupMsg struct{ id, group string }

func (leaveGroupMsg) Kind() actor.Kind { return actor.KindUser }

type incomingWsFrameMsg struct {
	connID string
	conn   *Connection
	frame  WsFrame
}

func (incomingWsFrameMsg) Kind() actor.Kind { return actor.KindUser }

// --- server -----------------------------------------------------------

// Server is the SPA Server actor of spec.md §4.8/§4.9: it owns the HTTP
// listener, the composed router, and the connection registry, and reacts to
// both system messages and the server-specific message set above.
type Server struct {
	cfg        ServerConfig
	services   []SpaService
	components *SpaComponents
	hub        *hub
	logger     *zap.Logger

	upgrader    websocket.Upgrader
	proxyClient *http.Client
	httpServer  *http.Server
	connIDs     *idgen.TypedID
}

// NewServer assembles the dependency-ordered, deduplicated service list and
// the shared SpaComponents, then returns the actor behavior ready to spawn.
// Route mounting and listening happen lazily on StartMsg, once self is
// known.
func NewServer(cfg ServerConfig, roots []SpaService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	builder := NewSpaServiceListBuilder()
	for _, svc := range roots {
		builder.Add(svc)
	}
	services := builder.Build()

	components := NewSpaComponents()
	for _, svc := range services {
		svc.AddComponents(components)
	}

	connIDs, err := idgen.NewTypedID(0)
	if err != nil {
		// maxNodeID bound is never violated by the literal 0 above.
		panic(err)
	}

	return &Server{
		cfg:        cfg,
		services:   services,
		components: components,
		hub:        newHub(logger),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebsocketReadBufferSize,
			WriteBufferSize: cfg.WebsocketWriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		proxyClient: &http.Client{
			Timeout: cfg.ProxyTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		connIDs: connIDs,
	}
}

// Receive implements actor.Behavior.
func (s *Server) Receive(ctx context.Context, self *actor.ActorHandle, msg actor.Message) actor.ReceiveAction {
	switch m := msg.(type) {
	case actor.StartMsg:
		s.start(self)
		return actor.Continue
	case actor.TerminateMsg:
		s.shutdown()
		return actor.Stop
	case dataAvailableMsg:
		for _, svc := range s.services {
			svc.DataAvailable(self, m.senderID, m.dataType)
		}
		return actor.Continue
	case broadcastWsMsg:
		s.hub.broadcast(encodeFrame(m.modPath, m.msgType, m.payload))
		return actor.Continue
	case sendWsMsg:
		s.hub.sendTo(m.connID, encodeFrame(m.modPath, m.msgType, m.payload))
		return actor.Continue
	case sendAllOthersWsMsg:
		s.hub.broadcastExcept(m.exceptConnID, encodeFrame(m.modPath, m.msgType, m.payload))
		return actor.Continue
	case sendGroupWsMsg:
		s.hub.sendGroup(m.group, encodeFrame(m.modPath, m.msgType, m.payload))
		return actor.Continue
	case addConnectionMsg:
		s.hub.add(m.id, m.conn)
		return actor.Continue
	case removeConnectionMsg:
		s.hub.remove(m.id)
		return actor.Continue
	case joinGroupMsg:
		s.hub.joinGroup(m.group, m.id)
		return actor.Continue
	case leaveGroupMsg:
		s.hub.leaveGroup(m.group, m.id)
		return actor.Continue
	case incomingWsFrameMsg:
		s.dispatchIncoming(m)
		return actor.Continue
	default:
		return actor.DefaultReceive(ctx, self, msg)
	}
}

func encodeFrame(modPath, msgType string, payload json.RawMessage) []byte {
	data, err := json.Marshal(WsFrame{ModPath: modPath, MsgType: msgType, Payload: payload})
	if err != nil {
		// payload was already json.RawMessage; Marshal of WsFrame itself
		// cannot fail except via a broken RawMessage, which is a caller bug.
		return nil
	}
	return data
}

func (s *Server) dispatchIncoming(m incomingWsFrameMsg) {
	for _, svc := range s.services {
		if !svc.IsWebsocket() {
			continue
		}
		if err := svc.HandleIncomingWsMsg(m.conn, m.frame); err != nil {
			s.logger.Debug("service rejected incoming ws frame",
				zap.String("mod_path", m.frame.ModPath), zap.Error(err))
		}
	}
}

// DataAvailable, BroadcastWsMsg, SendWsMsg, SendAllOthersWsMsg, and
// SendGroupWsMsg are the public entry points other actors use to drive the
// server (spec.md §4.8's four dispatch shapes plus the upstream-notification
// hook).

func DataAvailable(ctx context.Context, server *actor.ActorHandle, senderID, dataType string) error {
	return server.Send(ctx, dataAvailableMsg{senderID: senderID, dataType: dataType})
}

func BroadcastWsMsg(ctx context.Context, server *actor.ActorHandle, modPath, msgType string, payload json.RawMessage) error {
	return server.Send(ctx, broadcastWsMsg{modPath: modPath, msgType: msgType, payload: payload})
}

func SendWsMsg(ctx context.Context, server *actor.ActorHandle, connID, modPath, msgType string, payload json.RawMessage) error {
	return server.Send(ctx, sendWsMsg{connID: connID, modPath: modPath, msgType: msgType, payload: payload})
}

func SendAllOthersWsMsg(ctx context.Context, server *actor.ActorHandle, exceptConnID, modPath, msgType string, payload json.RawMessage) error {
	return server.Send(ctx, sendAllOthersWsMsg{exceptConnID: exceptConnID, modPath: modPath, msgType: msgType, payload: payload})
}

func SendGroupWsMsg(ctx context.Context, server *actor.ActorHandle, group, modPath, msgType string, payload json.RawMessage) error {
	return server.Send(ctx, sendGroupWsMsg{group: group, modPath: modPath, msgType: msgType, payload: payload})
}

// --- HTTP wiring ------------------------------------------------------

func (s *Server) start(self *actor.ActorHandle) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	state := ServerState{Name: s.cfg.Name, SelfHandle: self}

	// Every route lives under /<name>/..., mirroring build_router's
	// `/{name}`, `/{name}/proxy/*unmatched`, `/{name}/asset/:key/*unmatched`
	// mounting in odin_server/src/spa.rs — header/asset URIs are registered
	// relative (see AddModule/AddCSS callers) so they resolve against
	// RenderHTML's <base href="/<name>/">.
	group := router.Group("/" + s.cfg.Name)
	group.GET("", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.components.RenderHTML(s.cfg.Name)))
	})
	group.GET("/asset/:key/*filename", s.handleAsset)
	group.Any("/proxy/:key/*rest", s.handleProxy)
	for _, svc := range s.services {
		if svc.IsWebsocket() {
			group.GET("/ws", func(c *gin.Context) { s.handleWebsocket(c, self) })
			break
		}
	}

	for _, rr := range s.components.routes {
		rr.fn(group, state)
	}

	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: router}

	go func() {
		var err error
		certFile, keyFile := expandEnv(s.cfg.TLSCertFile), expandEnv(s.cfg.TLSKeyFile)
		if certFile != "" && keyFile != "" {
			s.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			err = s.httpServer.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server exited", zap.Error(err))
		}
	}()

	s.logger.Info("spa server listening", zap.String("addr", s.cfg.Addr))
}

func (s *Server) shutdown() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", zap.Error(err))
	}
}

func (s *Server) handleWebsocket(c *gin.Context, self *actor.ActorHandle) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id := s.connIDs.Generate(idgen.KindConnection)
	connCtx, cancel := context.WithCancel(context.Background())
	conn := newConnection(c.Request.RemoteAddr, ws, s.cfg.ConnBufferSize, cancel)

	_ = self.Send(c.Request.Context(), addConnectionMsg{id: id, conn: conn})

	for _, svc := range s.services {
		if svc.IsWebsocket() {
			svc.InitConnection(conn)
		}
	}

	go conn.writePump(connCtx, s.logger)
	go conn.readPump(connCtx, s.logger, func(data []byte) {
		var frame WsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Debug("malformed ws frame", zap.Error(err))
			return
		}
		_ = self.Send(context.Background(), incomingWsFrameMsg{connID: id, conn: conn, frame: frame})
	}, func() {
		_ = self.Send(context.Background(), removeConnectionMsg{id: id})
	})
}

func (s *Server) handleAsset(c *gin.Context) {
	key := c.Param("key")
	filename := strings.TrimPrefix(c.Param("filename"), "/")
	lookup, ok := s.components.assets[key]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	data, err := lookup(filename)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, contentTypeFor(filename), data)
}
