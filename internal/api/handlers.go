/**
 * @description
 * HTTP handlers for the entitlement service.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/app"
	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

// OrderService opens checkouts and activates the Free plan.
type OrderService interface {
	InitiateOrder(ctx context.Context, user *domain.User, plan domain.PlanName) (*app.OrderHandle, error)
	ActivateFree(ctx context.Context, userID string) (*domain.Subscription, error)
}

// PaymentVerifier settles gateway callbacks.
type PaymentVerifier interface {
	Verify(ctx context.Context, userID string, cb app.Callback) (*app.Verification, error)
}

// FeatureGate decides per-request access to gated features.
type FeatureGate interface {
	CheckAndConsume(ctx context.Context, userID string, feature domain.Feature) (domain.Decision, error)
}

// EntitlementViewer returns fresh entitlement snapshots.
type EntitlementViewer interface {
	Snapshot(ctx context.Context, userID string) (domain.EntitlementSnapshot, error)
}

// Services groups the application services the handlers call.
type Services struct {
	Orders   OrderService
	Verifier PaymentVerifier
	Gate     FeatureGate
	View     EntitlementViewer
	Sweeper  app.ExpirySweeper
}

// Handler holds the application services that handlers will interact with.
type Handler struct {
	services Services
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(services Services, logger zerolog.Logger) *Handler {
	return &Handler{services: services, logger: logger.With().Str("component", "http").Logger()}
}

type orderRequest struct {
	PlanName string `json:"plan_name"`
}

type freeActivationResponse struct {
	PlanName  domain.PlanName `json:"plan_name"`
	Activated bool            `json:"activated"`
}

type verifyResponse struct {
	Success        bool       `json:"success"`
	AlreadyApplied bool       `json:"already_applied"`
	ValidTill      *time.Time `json:"valid_till,omitempty"`
}

type consumeResponse struct {
	Allowed         bool                `json:"allowed"`
	Reason          domain.DenialReason `json:"reason,omitempty"`
	UpgradeRequired bool                `json:"upgrade_required"`
}

type sweepResponse struct {
	Deactivated int `json:"deactivated"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Entitlement service is healthy"))
}

// handleCreateOrder opens a Pro checkout, or activates Free directly.
func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	plan, err := domain.ParsePlanName(req.PlanName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if plan == domain.PlanFree {
		if _, err := h.services.Orders.ActivateFree(r.Context(), user.ID); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, freeActivationResponse{PlanName: domain.PlanFree, Activated: true})
		return
	}

	handle, err := h.services.Orders.InitiateOrder(r.Context(), user, plan)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, handle)
}

func (h *Handler) handleActivateFree(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if _, err := h.services.Orders.ActivateFree(r.Context(), user.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.respondWithSnapshot(w, r, user.ID)
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var cb app.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.services.Verifier.Verify(r.Context(), user.ID, cb)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := verifyResponse{Success: true, AlreadyApplied: result.AlreadyApplied}
	if result.Subscription != nil {
		resp.ValidTill = result.Subscription.ValidTill
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.respondWithSnapshot(w, r, user.ID)
}

func (h *Handler) handleConsumeFeature(w http.ResponseWriter, r *http.Request) {
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
	respondWithJSON(w, http.StatusOK, consumeResponse{Allowed: true})
}

func (h *Handler) handleExpireSweep(w http.ResponseWriter, r *http.Request) {
	deactivated, err := h.services.Sweeper.Sweep(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sweepResponse{Deactivated: deactivated})
}

func (h *Handler) respondWithSnapshot(w http.ResponseWriter, r *http.Request, userID string) {
	snapshot, err := h.services.View.Snapshot(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snapshot)
}

// writeServiceError maps the service error taxonomy onto HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *domain.GatewayError
	var storeErr *domain.StoreWriteError

	switch {
	case errors.Is(err, domain.ErrAuthentication):
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrSignatureInvalid):
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Payment signature could not be verified",
		})
	case errors.Is(err, domain.ErrOrderNotOwned):
		respondWithError(w, http.StatusForbidden, "Order does not belong to this account")
	case errors.Is(err, domain.ErrPlanConflict), errors.Is(err, domain.ErrPaymentMismatch):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gwErr):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("payment gateway call failed")
		respondWithError(w, http.StatusBadGateway, "Payment provider unavailable, please try again")
	case errors.As(err, &storeErr):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("entitlement store write failed")
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"refetch": true,
			"error":   "Could not save your subscription, please refresh",
		})
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithDenial(w http.ResponseWriter, decision domain.Decision) {
	respondWithJSON(w, http.StatusPaymentRequired, consumeResponse{
		Allowed:         false,
		Reason:          decision.Reason,
		UpgradeRequired: true,
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
