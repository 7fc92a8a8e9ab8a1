package http

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/nvoronov/link-manager/internal/database"
	"github.com/nvoronov/link-manager/internal/service"
	"github.com/nvoronov/link-manager/pkg/response"
)

// handleRedirect handles public slug resolution, on both the default host
// and verified custom domains. Blocked links with a disclosable reason get
// a 410 with the reason; everything else that fails looks like a plain 404.
func handleRedirect(svc ResolverService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		meta := service.AccessMeta{
			ClientIP:  extractIPAddress(r),
			UserAgent: r.UserAgent(),
			Referrer:  r.Referer(),
		}

		res, err := svc.Resolve(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "hostname"), meta)
		if err != nil {
			var blocked *service.BlockedError
			if errors.As(err, &blocked) && blocked.Disclosable() {
				render.Status(r, http.StatusGone)
				render.JSON(w, r, response.ErrorResponse(blocked.Result.Message))
				return
			}

			if !errors.Is(err, database.ErrLinkNotFound) && !errors.Is(err, service.ErrInvalidDomain) {
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
			}

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		http.Redirect(w, r, res.DestinationURL, http.StatusFound)
	}
}

// extractIPAddress returns the client IP, preferring proxy headers over the
// socket peer address.
func extractIPAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
