package http

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/nvoronov/link-manager/internal/auth"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/ratelimit"
	"github.com/nvoronov/link-manager/internal/service"
	"github.com/nvoronov/link-manager/pkg/response"
)

// ResolverService resolves slugs into redirect targets.
type ResolverService interface {
	Resolve(ctx context.Context, rawSlug, hostname string, meta service.AccessMeta) (*service.Resolution, error)
}

// LinkService defines the permanent-link management operations exposed over HTTP.
type LinkService interface {
	CreateLink(ctx context.Context, ownerID int64, in service.CreateLinkInput) (*models.Link, error)
	GetLink(ctx context.Context, callerID int64, slug string) (*models.Link, error)
	UpdateLink(ctx context.Context, callerID int64, slug string, in service.UpdateLinkInput) (*models.Link, error)
	ExtendExpiry(ctx context.Context, callerID int64, slug string, hours int) (*models.Link, error)
	DeleteLink(ctx context.Context, callerID int64, slug string) error
	GetStats(ctx context.Context, callerID int64, slug string) (*service.LinkStats, error)
}

// ShareService manages capability grants on links.
type ShareService interface {
	UpsertGrant(ctx context.Context, callerID int64, slug string, in service.ShareInput) (*models.SharedLink, error)
	RevokeGrant(ctx context.Context, callerID int64, slug string, granteeID int64) error
}

// TempLinkService creates anonymous short-lived links.
type TempLinkService interface {
	Create(ctx context.Context, identifier, originalURL string, ttl time.Duration) (*models.TempLink, error)
}

// RouterConfig tunes the HTTP-level knobs of the router.
type RouterConfig struct {
	// MutationLimit / MutationWindow rate-limit authenticated mutating
	// requests per caller.
	MutationLimit  int64
	MutationWindow time.Duration
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		MutationLimit:  60,
		MutationWindow: time.Minute,
	}
}

// getValidate initializes a validator that reports field names from JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// mutationLimiter caps mutating requests per caller. Authenticated callers
// are keyed by user ID, anonymous ones by client IP.
func mutationLimiter(limiter *ratelimit.Limiter, cfg RouterConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := extractIPAddress(r)
			if callerID, ok := auth.CallerID(r.Context()); ok {
				identifier = fmt.Sprintf("user:%d", callerID)
			}

			res := limiter.Check("api_mutation:"+identifier, cfg.MutationLimit, cfg.MutationWindow)
			if !res.Allowed {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.RateLimitedResponse(res.ResetAt))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter initializes the HTTP router with all routes and middleware configured.
func NewRouter(
	logger *httplog.Logger,
	resolverSvc ResolverService,
	linkSvc LinkService,
	shareSvc ShareService,
	tempSvc TempLinkService,
	tokens *auth.TokenManager,
	limiter *ratelimit.Limiter,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/{slug}", handleRedirect(resolverSvc))
	r.Get("/d/{hostname}/{slug}", handleRedirect(resolverSvc))

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()
		mutLimit := mutationLimiter(limiter, cfg)

		r.Get("/ping", handlePing)

		r.Post("/temp-links", handleCreateTempLink(tempSvc, validate))

		r.Route("/links", func(r chi.Router) {
			r.With(auth.RequireAuth(tokens), mutLimit).Post("/", handleCreateLink(linkSvc, validate))

			r.Route("/{slug}", func(r chi.Router) {
				r.With(auth.OptionalAuth(tokens)).Get("/stats", handleGetStats(linkSvc))

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAuth(tokens))

					r.Get("/", handleGetLink(linkSvc))
					r.With(mutLimit).Put("/", handleUpdateLink(linkSvc, validate))
					r.With(mutLimit).Delete("/", handleDeleteLink(linkSvc))
					r.With(mutLimit).Post("/extend", handleExtendExpiry(linkSvc, validate))
					r.With(mutLimit).Put("/shares", handleUpsertShare(shareSvc, validate))
					r.With(mutLimit).Delete("/shares/{granteeID}", handleRevokeShare(shareSvc))
				})
			})
		})
	})

	return r
}
