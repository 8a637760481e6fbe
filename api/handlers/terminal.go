// Package handlers provides the HTTP handlers of the terminal server.
package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/testlooper/wetty/internal/bridge"
	"github.com/testlooper/wetty/internal/config"
	"github.com/testlooper/wetty/internal/model"
	"github.com/testlooper/wetty/internal/session"
	"github.com/testlooper/wetty/internal/ws"
)

// TerminalHandler accepts terminal sockets and starts one session per socket.
type TerminalHandler struct {
	ctx      context.Context
	cfg      *config.Config
	sessions *session.Manager
	spawner  bridge.Spawner
	upgrader *websocket.Upgrader
	log      *zap.SugaredLogger
}

// NewTerminalHandler creates a TerminalHandler. Sessions are stopped when
// ctx is done.
func NewTerminalHandler(ctx context.Context, cfg *config.Config, sessions *session.Manager, spawner bridge.Spawner, log *zap.SugaredLogger) *TerminalHandler {
	return &TerminalHandler{
		ctx:      ctx,
		cfg:      cfg,
		sessions: sessions,
		spawner:  spawner,
		upgrader: ws.NewUpgrader(nil),
		log:      orNop(log),
	}
}

// Attach handles GET <socket path>: upgrades the request and runs a session
// on the resulting channel.
func (h *TerminalHandler) Attach(c *gin.Context) {
	// Parameters have to be captured before the upgrade hijacks the request.
	query, rawURL := model.RequestQuery(c.Request)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an error response
		h.log.Debugw("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	id := uuid.New().String()
	h.log.Infow("connection accepted", "session", id, "remote", c.ClientIP())

	channel := ws.NewConn(conn, h.log.Named("ws").With("session", id))
	s := bridge.New(id, channel, query, rawURL, bridge.Options{
		Terminal: &h.cfg.Terminal,
		Spawner:  h.spawner,
		Log:      h.log.Named("session"),
	})
	h.sessions.Add(s)

	go h.run(s)
}

func (h *TerminalHandler) run(s *bridge.Session) {
	err := s.Run(h.ctx)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidRequest):
		h.log.Debugw("session rejected", "session", s.ID, "error", err)
	default:
		h.log.Warnw("session failed", "session", s.ID, "error", err)
	}
}

// indexPage is the data the terminal page is rendered with.
type indexPage struct {
	SocketPath string
}

// Index handles GET /wetty - renders the terminal page with the socket path
// the client has to connect to.
func (h *TerminalHandler) Index(c *gin.Context) {
	page := filepath.Join(h.cfg.Server.StaticDir, "wetty", "index.html")
	tmpl, err := template.ParseFiles(page)
	if err != nil {
		h.log.Errorw("failed to load terminal page", "path", page, "error", err)
		sendError(c, http.StatusNotFound, "NOT_FOUND", "Terminal page not found")
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(c.Writer, indexPage{SocketPath: h.cfg.Server.SocketPath}); err != nil {
		h.log.Warnw("failed to render terminal page", "error", err)
	}
}

// RegisterRoutes registers the terminal routes. Any other GET falls through
// to the static directory.
func (h *TerminalHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/wetty", h.Index)
	r.GET(h.cfg.Server.SocketPath, h.Attach)

	static := http.FileServer(http.Dir(h.cfg.Server.StaticDir))
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			sendError(c, http.StatusNotFound, "NOT_FOUND", "Not found")
			return
		}
		static.ServeHTTP(c.Writer, c.Request)
	})
}
