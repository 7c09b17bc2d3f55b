package api

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

// RequireEntitlement consumes one use of the {feature} URL parameter before
// the request reaches the next handler. Denied requests get 402.
func (h *Handler) RequireEntitlement(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		feature, err := domain.ParseFeature(chi.URLParam(r, "feature"))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		decision, err := h.services.Gate.CheckAndConsume(r.Context(), user.ID, feature)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if !decision.Allowed {
			respondWithDenial(w, decision)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewAIProxy forwards /ai/... requests to the AI service with the /ai prefix
// removed. The session token is replaced by the caller's user id.
func NewAIProxy(target string, logger zerolog.Logger) (http.Handler, error) {
	upstream, err := url.Parse(strings.TrimSpace(target))
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid AI service url %q", target)
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/ai")
		r.URL.RawPath = ""
		if user, ok := UserFromContext(r.Context()); ok {
			r.Header.Set("X-User-ID", user.ID)
		}
		r.Header.Del("Authorization")
		director(r)
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("AI service request failed")
		respondWithError(w, http.StatusBadGateway, "AI service unavailable")
	}
	return proxy, nil
}
