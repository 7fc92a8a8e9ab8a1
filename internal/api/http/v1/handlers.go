package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/nvoronov/link-manager/internal/analytics"
	"github.com/nvoronov/link-manager/internal/auth"
	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/models"
	"github.com/nvoronov/link-manager/internal/permission"
	"github.com/nvoronov/link-manager/internal/service"
	"github.com/nvoronov/link-manager/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// createLinkRequest is the payload for creating a permanent link.
type createLinkRequest struct {
	URL           string `json:"url" validate:"required,url"`
	CustomSlug    string `json:"custom_slug,omitempty" validate:"omitempty,max=50"`
	Title         string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description   string `json:"description,omitempty" validate:"omitempty,max=1000"`
	IsPublicStats bool   `json:"is_public_stats,omitempty"`

	IsTemporary bool       `json:"is_temporary,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	IsClickLimited bool   `json:"is_click_limited,omitempty"`
	MaxClicks      *int64 `json:"max_clicks,omitempty"`

	IsTimeRestricted        bool   `json:"is_time_restricted,omitempty"`
	TimeRestrictionStart    string `json:"time_restriction_start,omitempty"`
	TimeRestrictionEnd      string `json:"time_restriction_end,omitempty"`
	TimeRestrictionTimezone string `json:"time_restriction_timezone,omitempty"`
}

// updateLinkRequest carries a partial update. Absent fields keep their value.
type updateLinkRequest struct {
	URL           *string `json:"url,omitempty" validate:"omitempty,url"`
	Title         *string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	IsActive      *bool   `json:"is_active,omitempty"`
	IsFavorite    *bool   `json:"is_favorite,omitempty"`
	IsPublicStats *bool   `json:"is_public_stats,omitempty"`

	IsTemporary *bool      `json:"is_temporary,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	IsClickLimited *bool  `json:"is_click_limited,omitempty"`
	MaxClicks      *int64 `json:"max_clicks,omitempty"`

	IsTimeRestricted        *bool   `json:"is_time_restricted,omitempty"`
	TimeRestrictionStart    *string `json:"time_restriction_start,omitempty"`
	TimeRestrictionEnd      *string `json:"time_restriction_end,omitempty"`
	TimeRestrictionTimezone *string `json:"time_restriction_timezone,omitempty"`
}

type extendExpiryRequest struct {
	Hours int `json:"hours" validate:"required,min=1,max=720"`
}

type shareRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`

	CanView      bool `json:"can_view,omitempty"`
	CanEdit      bool `json:"can_edit,omitempty"`
	CanDelete    bool `json:"can_delete,omitempty"`
	CanViewStats bool `json:"can_view_stats,omitempty"`
	CanShare     bool `json:"can_share,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type tempLinkRequest struct {
	URL      string `json:"url" validate:"required,url"`
	TTLHours int    `json:"ttl_hours,omitempty" validate:"omitempty,min=1,max=168"`
}

// linkResponse is the response payload for a permanent link.
type linkResponse struct {
	ID            int64  `json:"id"`
	Slug          string `json:"slug"`
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	IsActive      bool   `json:"is_active"`
	IsFavorite    bool   `json:"is_favorite"`
	IsPublicStats bool   `json:"is_public_stats"`
	ClickCount    int64  `json:"click_count"`

	IsTemporary bool       `json:"is_temporary"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	IsClickLimited bool   `json:"is_click_limited"`
	MaxClicks      *int64 `json:"max_clicks,omitempty"`

	IsTimeRestricted        bool   `json:"is_time_restricted"`
	TimeRestrictionStart    string `json:"time_restriction_start,omitempty"`
	TimeRestrictionEnd      string `json:"time_restriction_end,omitempty"`
	TimeRestrictionTimezone string `json:"time_restriction_timezone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLinkResponse(link *models.Link) linkResponse {
	return linkResponse{
		ID:                      link.ID,
		Slug:                    link.Slug,
		URL:                     link.OriginalURL,
		Title:                   link.Title,
		Description:             link.Description,
		IsActive:                link.IsActive,
		IsFavorite:              link.IsFavorite,
		IsPublicStats:           link.IsPublicStats,
		ClickCount:              link.ClickCount,
		IsTemporary:             link.IsTemporary,
		ExpiresAt:               link.ExpiresAt,
		IsClickLimited:          link.IsClickLimited,
		MaxClicks:               link.MaxClicks,
		IsTimeRestricted:        link.IsTimeRestricted,
		TimeRestrictionStart:    link.TimeRestrictionStart,
		TimeRestrictionEnd:      link.TimeRestrictionEnd,
		TimeRestrictionTimezone: link.TimeRestrictionTimezone,
		CreatedAt:               link.CreatedAt,
		UpdatedAt:               link.UpdatedAt,
	}
}

type statsResponse struct {
	Slug          string    `json:"slug"`
	URL           string    `json:"url"`
	ClickCount    int64     `json:"click_count"`
	ActiveGrants  int64     `json:"active_grants"`
	IsPublicStats bool      `json:"is_public_stats"`
	CreatedAt     time.Time `json:"created_at"`
}

type shareResponse struct {
	LinkID           int64      `json:"link_id"`
	SharedWithUserID int64      `json:"shared_with_user_id"`
	SharedWithEmail  string     `json:"shared_with_email,omitempty"`
	CanView          bool       `json:"can_view"`
	CanEdit          bool       `json:"can_edit"`
	CanDelete        bool       `json:"can_delete"`
	CanViewStats     bool       `json:"can_view_stats"`
	CanShare         bool       `json:"can_share"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

func toShareResponse(grant *models.SharedLink) shareResponse {
	return shareResponse{
		LinkID:           grant.LinkID,
		SharedWithUserID: grant.SharedWithUserID,
		SharedWithEmail:  grant.SharedWithEmail,
		CanView:          grant.CanView,
		CanEdit:          grant.CanEdit,
		CanDelete:        grant.CanDelete,
		CanViewStats:     grant.CanViewStats,
		CanShare:         grant.CanShare,
		ExpiresAt:        grant.ExpiresAt,
	}
}

type tempLinkResponse struct {
	Slug      string    `json:"slug"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// decodeAndValidate reads the JSON body into req and validates it, writing
// the error response itself. It reports whether the handler should proceed.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, req any) bool {
	if err := render.DecodeJSON(r.Body, req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.EmptyRequestBodyResponse)
			return false
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.BadRequestResponse)
		return false
	}

	if err := validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationErrorResponse(err))
		return false
	}

	return true
}

// writeServiceError maps service errors onto HTTP responses. A caller with
// no relationship to a link gets the same 404 as a missing link.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var taken *service.SlugTakenError
	var limited *service.RateLimitError

	switch {
	case errors.Is(err, database.ErrLinkNotFound),
		errors.Is(err, database.ErrTempLinkNotFound),
		errors.Is(err, database.ErrGrantNotFound),
		errors.Is(err, permission.ErrNoRelationship):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.ResourceNotFoundResponse)
	case errors.Is(err, permission.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.ForbiddenResponse)
	case errors.As(err, &taken):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.ConflictResponse("The slug is already taken.", taken.Suggestions))
	case errors.As(err, &limited):
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, response.RateLimitedResponse(limited.Result.ResetAt))
	case errors.Is(err, service.ErrOwnGrant):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ErrorResponse("A link cannot be shared with its owner."))
	case errors.Is(err, service.ErrValidation):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.BadRequestResponse)
	default:
		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
	}
}

// handleCreateLink handles POST requests to create a permanent link.
func handleCreateLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateLink"
	const successMsg = "The link has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}

		callerID, _ := auth.CallerID(r.Context())

		link, err := svc.CreateLink(r.Context(), callerID, service.CreateLinkInput{
			CustomSlug:              req.CustomSlug,
			OriginalURL:             req.URL,
			Title:                   req.Title,
			Description:             req.Description,
			IsPublicStats:           req.IsPublicStats,
			IsTemporary:             req.IsTemporary,
			ExpiresAt:               req.ExpiresAt,
			IsClickLimited:          req.IsClickLimited,
			MaxClicks:               req.MaxClicks,
			IsTimeRestricted:        req.IsTimeRestricted,
			TimeRestrictionStart:    req.TimeRestrictionStart,
			TimeRestrictionEnd:      req.TimeRestrictionEnd,
			TimeRestrictionTimezone: req.TimeRestrictionTimezone,
		})
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleGetLink handles GET requests for a single link.
func handleGetLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLink"
	const successMsg = "The link was retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := auth.CallerID(r.Context())

		link, err := svc.GetLink(r.Context(), callerID, chi.URLParam(r, "slug"))
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleUpdateLink handles PUT requests carrying a partial update.
func handleUpdateLink(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleUpdateLink"
	const successMsg = "The link was updated successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req updateLinkRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}

		callerID, _ := auth.CallerID(r.Context())

		link, err := svc.UpdateLink(r.Context(), callerID, chi.URLParam(r, "slug"), service.UpdateLinkInput{
			OriginalURL:             req.URL,
			Title:                   req.Title,
			Description:             req.Description,
			IsActive:                req.IsActive,
			IsFavorite:              req.IsFavorite,
			IsPublicStats:           req.IsPublicStats,
			IsTemporary:             req.IsTemporary,
			ExpiresAt:               req.ExpiresAt,
			IsClickLimited:          req.IsClickLimited,
			MaxClicks:               req.MaxClicks,
			IsTimeRestricted:        req.IsTimeRestricted,
			TimeRestrictionStart:    req.TimeRestrictionStart,
			TimeRestrictionEnd:      req.TimeRestrictionEnd,
			TimeRestrictionTimezone: req.TimeRestrictionTimezone,
		})
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleExtendExpiry handles POST requests pushing a temporary link's expiry forward.
func handleExtendExpiry(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleExtendExpiry"
	const successMsg = "The link expiry was extended successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req extendExpiryRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}

		callerID, _ := auth.CallerID(r.Context())

		link, err := svc.ExtendExpiry(r.Context(), callerID, chi.URLParam(r, "slug"), req.Hours)
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(link)))
	}
}

// handleDeleteLink handles DELETE requests to remove a link.
func handleDeleteLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"
	const successMsg = "The link was deleted successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := auth.CallerID(r.Context())

		if err := svc.DeleteLink(r.Context(), callerID, chi.URLParam(r, "slug")); err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleGetStats handles GET requests for link statistics. Links with public
// stats are readable without authentication.
func handleGetStats(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleGetStats"
	const successMsg = "The link statistics were retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := auth.CallerID(r.Context())

		stats, err := svc.GetStats(r.Context(), callerID, chi.URLParam(r, "slug"))
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, statsResponse{
			Slug:          stats.Link.Slug,
			URL:           stats.Link.OriginalURL,
			ClickCount:    stats.Link.ClickCount,
			ActiveGrants:  stats.ActiveGrants,
			IsPublicStats: stats.Link.IsPublicStats,
			CreatedAt:     stats.Link.CreatedAt,
		}))
	}
}

// handleUpsertShare handles PUT requests creating or replacing a grant.
func handleUpsertShare(svc ShareService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleUpsertShare"
	const successMsg = "The share grant was saved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req shareRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}

		callerID, _ := auth.CallerID(r.Context())

		grant, err := svc.UpsertGrant(r.Context(), callerID, chi.URLParam(r, "slug"), service.ShareInput{
			SharedWithUserID: req.UserID,
			SharedWithEmail:  req.Email,
			CanView:          req.CanView,
			CanEdit:          req.CanEdit,
			CanDelete:        req.CanDelete,
			CanViewStats:     req.CanViewStats,
			CanShare:         req.CanShare,
			ExpiresAt:        req.ExpiresAt,
		})
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toShareResponse(grant)))
	}
}

// handleRevokeShare handles DELETE requests removing a grant.
func handleRevokeShare(svc ShareService) http.HandlerFunc {
	const op = "api.http.handleRevokeShare"
	const successMsg = "The share grant was revoked successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		granteeID, err := strconv.ParseInt(chi.URLParam(r, "granteeID"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		callerID, _ := auth.CallerID(r.Context())

		if err := svc.RevokeGrant(r.Context(), callerID, chi.URLParam(r, "slug"), granteeID); err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleCreateTempLink handles POST requests creating an anonymous link. The
// rate-limit identity is the hashed client IP.
func handleCreateTempLink(svc TempLinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateTempLink"
	const successMsg = "The temporary link has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req tempLinkRequest
		if !decodeAndValidate(w, r, validate, &req) {
			return
		}

		ttl := time.Duration(req.TTLHours) * time.Hour

		link, err := svc.Create(r.Context(), "ip:"+analytics.HashIP(extractIPAddress(r)), req.URL, ttl)
		if err != nil {
			writeServiceError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, tempLinkResponse{
			Slug:      link.Slug,
			Token:     link.Token,
			URL:       link.OriginalURL,
			ExpiresAt: link.ExpiresAt,
		}))
	}
}
