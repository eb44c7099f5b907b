// Package service holds the identity resolver: visitor bootstrap,
// find-or-create, and promotion to a registered account. Uniqueness is
// checked twice on promotion, proactively and again by the storage
// engine's constraints, because two requests can pass the proactive
// check concurrently for the same value.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	identitymetrics "visitid/internal/identity/metrics"
	"visitid/internal/identity/models"
	"visitid/internal/identity/store"
	dErrors "visitid/pkg/domain-errors"
	"visitid/pkg/platform/audit"
	"visitid/pkg/platform/middleware/metadata"
	"visitid/pkg/platform/sentinel"
	"visitid/pkg/requestcontext"
)

// Resolution is the outcome of a visitor resolution: the record, the token
// to (re-)attach to the outbound session, and whether the record is new.
type Resolution struct {
	Identity *models.Identity
	Token    string
	Created  bool
}

// Service orchestrates identity resolution and promotion over a Store.
type Service struct {
	store     store.Store
	tx        StoreTx
	logger    *slog.Logger
	metrics   *identitymetrics.Metrics
	audit     audit.Publisher
	mintToken func() string
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.audit = publisher
		}
	}
}

// WithStoreTx swaps in a transactional runner, typically the sql-backed one
// from cmd/server. The default serializes over the injected store in memory.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// WithTokenMinter overrides visitor token generation. Tests use this for
// deterministic tokens.
func WithTokenMinter(mint func() string) Option {
	return func(s *Service) {
		if mint != nil {
			s.mintToken = mint
		}
	}
}

func New(identities store.Store, opts ...Option) *Service {
	s := &Service{
		store:     identities,
		tx:        newMemoryTx(identities),
		logger:    slog.New(slog.DiscardHandler),
		audit:     audit.NopPublisher{},
		mintToken: uuid.NewString,
		tracer:    otel.Tracer("visitid/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveVisitor binds the request to a durable pseudonymous identity. A
// presented token that matches a record refreshes it in place; a stale or
// absent token falls through to fresh creation, an expected branch rather
// than a failure.
func (s *Service) ResolveVisitor(ctx context.Context, token, clientIP string) (*Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "identity.ResolveVisitor")
	defer span.End()
	start := time.Now()
	defer s.observeResolve(start)

	now := requestcontext.Now(ctx)

	if token != "" {
		existing, err := s.store.FindByVisitorToken(ctx, token)
		switch {
		case err == nil:
			existing.Touch(clientIP, now)
			if uerr := s.store.UpdateByID(ctx, existing); uerr != nil {
				// Best-effort refresh: the read path still succeeds.
				s.logger.WarnContext(ctx, "visitor refresh failed",
					"identity_id", existing.ID,
					"error", uerr,
				)
			}
			if s.metrics != nil {
				s.metrics.VisitorsResolved.Inc()
			}
			return &Resolution{Identity: existing, Token: token}, nil
		case errors.Is(err, sentinel.ErrNotFound):
			s.logger.WarnContext(ctx, "visitor token unknown, reissuing", "token", token)
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "visitor lookup failed")
		}
	}

	fresh := models.NewVisitor(s.mintToken(), clientIP, now)
	if err := s.store.Insert(ctx, fresh); err != nil {
		// A token collision here would need two identical 128-bit draws;
		// treat every insert failure as the identity not being established.
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to establish visitor identity")
	}

	if s.metrics != nil {
		s.metrics.VisitorsCreated.Inc()
	}
	s.emit(ctx, audit.ActionVisitorCreated, fresh, clientIP)

	return &Resolution{Identity: fresh, Token: fresh.VisitorToken, Created: true}, nil
}

// Promote upgrades the identity bound to token into a registered account.
// The uniqueness checks and the write run in one atomic unit; a conflict,
// whether proactive or reported by the engine on commit, surfaces as CodeConflict
// with the offending attribute recoverable via errors.As. No automatic
// retry.
func (s *Service) Promote(ctx context.Context, token string, attrs models.RegistrationAttrs, clientIP string) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Promote")
	defer span.End()
	start := time.Now()
	defer s.observePromote(start)

	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "visitor session required")
	}

	now := requestcontext.Now(ctx)

	existing, err := s.store.FindByVisitorToken(ctx, token)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "visitor lookup failed")
	}

	var result *models.Identity
	err = s.tx.RunInTx(ctx, func(txStore store.Store) error {
		var excludeID int64
		if existing != nil {
			excludeID = existing.ID
		}
		if err := txStore.CheckUnique(ctx, store.AttrVisitorToken, token, excludeID); err != nil {
			return err
		}
		if err := txStore.CheckUnique(ctx, store.AttrUserHandle, attrs.UserHandle, excludeID); err != nil {
			return err
		}
		if err := txStore.CheckUnique(ctx, store.AttrPhone, attrs.Phone, excludeID); err != nil {
			return err
		}

		if existing != nil {
			promoted := *existing
			promoted.ApplyRegistration(attrs, clientIP, now)
			if err := txStore.UpdateByID(ctx, &promoted); err != nil {
				return err
			}
			result = &promoted
			return nil
		}

		created := models.NewRegistered(token, attrs, clientIP, now)
		if err := txStore.Insert(ctx, created); err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			if s.metrics != nil {
				s.metrics.IncPromoteConflict(string(conflict.Attr))
			}
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, string(conflict.Attr)+" already registered")
		}
		var coded *dErrors.Error
		if errors.As(err, &coded) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "registration failed")
	}

	if s.metrics != nil {
		s.metrics.Promotions.Inc()
	}
	s.emit(ctx, audit.ActionPromoted, result, clientIP)

	return result, nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, rec *models.Identity, clientIP string) {
	event := audit.Event{
		ID:          uuid.NewString(),
		Action:      action,
		Timestamp:   requestcontext.Now(ctx),
		IdentityID:  rec.ID,
		UserHandle:  rec.UserHandle,
		ClientIP:    clientIP,
		DeviceLabel: metadata.GetDeviceLabel(ctx),
		RequestID:   requestcontext.RequestID(ctx),
	}
	if err := s.audit.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit publish failed", "action", action, "error", err)
	}
}

func (s *Service) observeResolve(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveResolve(start)
	}
}

func (s *Service) observePromote(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObservePromote(start)
	}
}
