package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/repository"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type activationStore interface {
	Activate(ctx context.Context, tenantID, documentID string, now time.Time) (*repository.ActivationOutcome, error)
}

type activationMetrics interface {
	ObserveActivation(outcome string, superseded bool)
	ObserveActivationRetry()
	ObserveActivationConflict()
}

// ActivationService enforces the single-active-document invariant. It is
// the only component allowed to flip is_active or write supersession
// pointers, and the only place that retries automatically.
type ActivationService struct {
	store      activationStore
	metrics    activationMetrics
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
	nowFn      func() time.Time
	sleepFn    func(context.Context, time.Duration) error
}

// ActivationServiceOption configures the service.
type ActivationServiceOption func(*ActivationService)

// WithActivationRetries bounds the internal retry loop.
func WithActivationRetries(max int, backoff time.Duration) ActivationServiceOption {
	return func(s *ActivationService) {
		if max > 0 {
			s.maxRetries = max
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithActivationMetrics attaches instrumentation.
func WithActivationMetrics(m activationMetrics) ActivationServiceOption {
	return func(s *ActivationService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithActivationClock overrides the time source (tests).
func WithActivationClock(nowFn func() time.Time) ActivationServiceOption {
	return func(s *ActivationService) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// NewActivationService constructs the service with defaults.
func NewActivationService(store activationStore, logger *zap.Logger, opts ...ActivationServiceOption) *ActivationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ActivationService{
		store:      store,
		logger:     logger,
		maxRetries: 3,
		backoff:    25 * time.Millisecond,
		nowFn:      func() time.Time { return time.Now().UTC() },
		sleepFn:    sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Activate makes the document the active version for its (owner, type)
// lineage, superseding any prior active version. Lock contention is retried
// with exponential backoff up to the configured bound, then surfaced as a
// retryable conflict. Re-activating the already-active row is a no-op.
func (s *ActivationService) Activate(ctx context.Context, tenantID, documentID string) (*dto.ActivationResult, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if documentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document id is required")
	}

	var lastErr error
	delay := s.backoff
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.ObserveActivationRetry()
			}
			if err := s.sleepFn(ctx, delay); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrActivationConflict.Code, appErrors.ErrActivationConflict.Status, "activation cancelled while retrying")
			}
			delay *= 2
		}

		outcome, err := s.store.Activate(ctx, tenantID, documentID, s.nowFn())
		if err == nil {
			if s.metrics != nil {
				outcomeLabel := "activated"
				if outcome.AlreadyActive {
					outcomeLabel = "noop"
				}
				s.metrics.ObserveActivation(outcomeLabel, outcome.Superseded != nil)
			}
			result := &dto.ActivationResult{
				Document:      &outcome.Document,
				Superseded:    outcome.Superseded,
				AlreadyActive: outcome.AlreadyActive,
			}
			if outcome.Superseded != nil {
				s.logger.Info("document superseded",
					zap.String("tenant_id", tenantID),
					zap.String("document_id", outcome.Document.ID),
					zap.String("superseded_id", outcome.Superseded.ID),
					zap.Int("version", outcome.Document.VersionNumber))
			}
			return result, nil
		}

		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found: "+documentID)
		}
		if !repository.IsSerializationFailure(err) && !appErrors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("activation contention, retrying",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", documentID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.ObserveActivationConflict()
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrActivationConflict.Code, appErrors.ErrActivationConflict.Status,
		"concurrent activation on document "+documentID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
