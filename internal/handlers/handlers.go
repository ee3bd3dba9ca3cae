package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parchment/internal/config"
	"parchment/internal/middleware"
	"parchment/internal/models"
	"parchment/internal/service"
)

const (
	maxJSONBodyBytes = 16 << 10
	multipartSlack   = 1 << 20
)

type SessionManager interface {
	Signup(ctx context.Context, input service.SignupInput) (models.PublicUser, error)
	Login(ctx context.Context, email string, password string) (service.SessionResult, error)
	Refresh(ctx context.Context, refreshToken string) (service.SessionResult, error)
	Logout(ctx context.Context, userID string) error
	AuthenticateRequest(ctx context.Context, accessToken string) (models.PublicUser, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type NoteManager interface {
	Create(ctx context.Context, ownerID string, input service.NoteInput) (models.Note, error)
	List(ctx context.Context, ownerID string) ([]models.Note, error)
	Update(ctx context.Context, ownerID string, noteID string, input service.NoteInput) (models.Note, error)
	Delete(ctx context.Context, ownerID string, noteID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log          zerolog.Logger
	Config       *config.AppConfig
	Sessions     SessionManager
	Notes        NoteManager
	RateLimiter  *middleware.RateLimiter
	HealthChecks map[string]Pinger
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	sessions    SessionManager
	notes       NoteManager
	rateLimiter *middleware.RateLimiter
	checks      map[string]Pinger
	cookies     middleware.SessionCookies
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:         deps.Log.With().Str("component", "http").Logger(),
		cfg:         deps.Config,
		sessions:    deps.Sessions,
		notes:       deps.Notes,
		rateLimiter: deps.RateLimiter,
		checks:      deps.HealthChecks,
		cookies: middleware.SessionCookies{
			Secure: deps.Config.IsProduction(),
			Domain: deps.Config.Cookies.Domain,
			Path:   deps.Config.Cookies.Path,
		},
	}
}

func (h HandlerSet) Register(engine *gin.Engine) {
	engine.GET("/health", h.Health)

	jsonLimit := h.cfg.HTTP.MaxBodyBytes
	if jsonLimit <= 0 {
		jsonLimit = maxJSONBodyBytes
	}
	authenticated := middleware.Auth(h.sessions, h.cookies)

	v1 := engine.Group("/api/v1")

	users := v1.Group("/users", middleware.BodyLimit(jsonLimit))
	{
		public := users.Group("")
		if h.rateLimiter != nil {
			public.Use(h.rateLimiter.Middleware())
		}
		public.POST("/signup", h.Signup)
		public.POST("/login", h.Login)
		public.POST("/refresh-token", h.RefreshToken)

		users.POST("/logout", authenticated, h.Logout)
		users.GET("/me", authenticated, h.Me)
	}

	notes := v1.Group("/notes",
		middleware.BodyLimit(h.cfg.Storage.MaxUploadBytes+multipartSlack),
		authenticated,
	)
	{
		notes.GET("", h.ListNotes)
		notes.POST("", h.CreateNote)
		notes.PATCH("/:id", h.UpdateNote)
		notes.DELETE("/:id", h.DeleteNote)
	}
}

// bindingErrors splits validator output into one message per field.
func bindingErrors(err error) []string {
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return []string{"request body too large"}
	}
	return strings.Split(err.Error(), "\n")
}
