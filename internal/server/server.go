package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

// SyncService is the slice of the orchestrator the HTTP layer needs.
type SyncService interface {
	StartSync(ctx context.Context, userID string) (*syncer.RunInfo, error)
	PauseSync(ctx context.Context, userID string) (bool, error)
}

// OAuthFlow handles consent URLs and the code exchange.
type OAuthFlow interface {
	ConsentURL(redirectURI, state string) string
	Exchange(ctx context.Context, code, redirectURI, userID string) error
}

// ConnectionStore answers whether a user has usable credentials.
type ConnectionStore interface {
	IsConnected(ctx context.Context, userID string) (bool, error)
}

// ProviderHandler serves one sync endpoint (/gmail-sync or /calendar-sync).
type ProviderHandler struct {
	function string
	oauth    OAuthFlow
	tokens   ConnectionStore
	sync     SyncService
	log      *zap.SugaredLogger
}

func NewProviderHandler(function string, oauth OAuthFlow, tokens ConnectionStore, sync SyncService, log *zap.SugaredLogger) *ProviderHandler {
	return &ProviderHandler{function: function, oauth: oauth, tokens: tokens, sync: sync, log: log}
}

// Server hosts the sync endpoints behind CORS and bearer auth.
type Server struct {
	engine    *gin.Engine
	jwtSecret []byte
}

func New(jwtSecret string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware())
	return &Server{engine: engine, jwtSecret: []byte(jwtSecret)}
}

// Register mounts a provider handler at /<function>. GET is the
// unauthenticated health check; POST carries the action commands.
func (s *Server) Register(h *ProviderHandler) {
	path := "/" + h.function
	s.engine.GET(path, h.health)
	s.engine.POST(path, authMiddleware(s.jwtSecret), h.handle)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (h *ProviderHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "function": h.function})
}

func (h *ProviderHandler) handle(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := c.GetString("user_id")
	ctx := c.Request.Context()

	switch req.Action {
	case ActionGetAuthURL:
		c.JSON(http.StatusOK, gin.H{"auth_url": h.oauth.ConsentURL(req.RedirectURI, req.State)})

	case ActionExchangeCode:
		if err := h.oauth.Exchange(ctx, req.Code, req.RedirectURI, userID); err != nil {
			var authErr *syncer.AuthError
			if errors.As(err, &authErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": authErr.Error()})
				return
			}
			h.log.Errorf("code exchange failed for user %s: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "code exchange failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})

	case ActionGetConnectionStatus:
		connected, err := h.tokens.IsConnected(ctx, userID)
		if err != nil {
			h.log.Errorf("connection status for user %s failed: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read connection status"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connected": connected})

	case ActionStartSync:
		info, err := h.sync.StartSync(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyRunning) {
				c.JSON(http.StatusOK, gin.H{"ok": false, "message": "sync already running"})
				return
			}
			h.log.Errorf("start sync for user %s failed: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sync"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"message":    "sync started",
			"run_id":     info.RunID,
			"started_at": info.StartedAt,
		})

	case ActionPauseSync:
		paused, err := h.sync.PauseSync(ctx, userID)
		if err != nil {
			h.log.Errorf("pause sync for user %s failed: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to pause sync"})
			return
		}
		message := "pause requested"
		if !paused {
			message = "no sync running"
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown action: %s", req.Action)})
	}
}
