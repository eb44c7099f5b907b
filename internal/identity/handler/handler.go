package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"visitid/internal/identity/models"
	"visitid/internal/identity/service"
	"visitid/internal/identity/session"
	"visitid/internal/jwttoken"
	"visitid/internal/platform/middleware"
	"visitid/internal/transport/http/shared"
	dErrors "visitid/pkg/domain-errors"
	metadata "visitid/pkg/platform/middleware/metadata"
)

const (
	requestTimeout = 30 * time.Second
	assertionTTL   = time.Hour
)

// Service defines the identity operations the handler depends on.
type Service interface {
	ResolveVisitor(ctx context.Context, token, clientIP string) (*service.Resolution, error)
	Promote(ctx context.Context, token string, attrs models.RegistrationAttrs, clientIP string) (*models.Identity, error)
}

// Handler serves the anonymous bootstrap and registration endpoints.
type Handler struct {
	logger     *slog.Logger
	identity   Service
	assertions *jwttoken.Service
	cookies    session.CookieOptions
	rateLimit  func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithAssertions enables signed identity assertions in register responses.
func WithAssertions(svc *jwttoken.Service) Option {
	return func(h *Handler) {
		h.assertions = svc
	}
}

// WithRateLimit applies a per-IP limiter to the bootstrap routes.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

// WithCookieOptions overrides cookie attributes (secure flag, path).
func WithCookieOptions(opts session.CookieOptions) Option {
	return func(h *Handler) {
		h.cookies = opts
	}
}

func New(identity Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:   logger,
		identity: identity,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the identity routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	identityRouter := chi.NewRouter()
	identityRouter.Use(middleware.Recovery(h.logger))
	identityRouter.Use(middleware.RequestID)
	identityRouter.Use(middleware.RequestTime)
	identityRouter.Use(middleware.Logger(h.logger))
	identityRouter.Use(middleware.Timeout(requestTimeout))
	identityRouter.Use(metadata.ClientMetadata)
	if h.rateLimit != nil {
		identityRouter.Use(h.rateLimit)
	}
	identityRouter.Post("/auth/visitor", h.handleVisitor)
	identityRouter.Post("/auth/register", h.handleRegister)

	r.Mount("/", identityRouter)
}

type visitorResponse struct {
	IdentityID int64  `json:"identity_id"`
	Role       string `json:"role"`
	Created    bool   `json:"created"`
}

type registerResponse struct {
	IdentityID  int64  `json:"identity_id"`
	UserHandle  string `json:"user_handle"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Assertion   string `json:"assertion,omitempty"`
}

// handleVisitor resolves the visitor cookie into an identity record,
// minting a fresh token when the cookie is absent or stale.
func (h *Handler) handleVisitor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := session.ReadToken(r)
	clientIP := metadata.GetClientIP(ctx)

	res, err := h.identity.ResolveVisitor(ctx, token, clientIP)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to resolve visitor",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	session.WriteToken(w, res.Token, h.cookies)
	shared.WriteJSON(w, http.StatusOK, visitorResponse{
		IdentityID: res.Identity.ID,
		Role:       string(res.Identity.Role),
		Created:    res.Created,
	})
}

// handleRegister promotes the visitor behind the cookie to a
// registered user.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var attrs models.RegistrationAttrs
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		h.logger.WarnContext(ctx, "invalid register request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	attrs.Normalize()
	if err := attrs.Validate(); err != nil {
		h.logger.WarnContext(ctx, "registration rejected",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	token := session.ReadToken(r)
	clientIP := metadata.GetClientIP(ctx)

	rec, err := h.identity.Promote(ctx, token, attrs, clientIP)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeConflict) || dErrors.Is(err, dErrors.CodeUnauthorized) {
			h.logger.WarnContext(ctx, "promotion refused",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to promote visitor",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	resp := registerResponse{
		IdentityID:  rec.ID,
		UserHandle:  rec.UserHandle,
		DisplayName: rec.DisplayName,
		Role:        string(rec.Role),
	}
	if h.assertions != nil {
		assertion, err := h.assertions.GenerateAssertion(rec.ID, rec.UserHandle, string(rec.Role), assertionTTL)
		if err != nil {
			// Registration already committed; surface the identity
			// without an assertion rather than failing the request.
			h.logger.ErrorContext(ctx, "failed to sign identity assertion",
				"request_id", requestID,
				"error", err.Error(),
			)
		} else {
			resp.Assertion = assertion
		}
	}

	// Keep the cookie fresh so the promoted session survives.
	session.WriteToken(w, rec.VisitorToken, h.cookies)
	shared.WriteJSON(w, http.StatusOK, resp)
}
