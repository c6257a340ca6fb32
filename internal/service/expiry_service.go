package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prestafacil/loandocs-api/internal/models"
	"github.com/prestafacil/loandocs-api/pkg/jobs"
)

type expiryStore interface {
	ExpireApproved(ctx context.Context, cutoff time.Time) ([]models.Document, error)
}

// ExpiryService sweeps approved documents past their validity window into
// EXPIRED. It runs off the request path on the background job queue.
type ExpiryService struct {
	docs     expiryStore
	audit    auditSink
	validity time.Duration
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewExpiryService constructs the service. A non-positive validity disables
// sweeping.
func NewExpiryService(docs expiryStore, audit auditSink, validity time.Duration, logger *zap.Logger) *ExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryService{
		docs:     docs,
		audit:    audit,
		validity: validity,
		logger:   logger,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Sweep expires approved documents whose window opened more than the
// configured validity ago. Returns the number of documents expired.
func (s *ExpiryService) Sweep(ctx context.Context) (int, error) {
	if s.validity <= 0 {
		return 0, nil
	}
	cutoff := s.nowFn().Add(-s.validity)
	expired, err := s.docs.ExpireApproved(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for i := range expired {
		doc := expired[i]
		s.emitAudit(ctx, &models.AuditLog{
			TenantID:   doc.TenantID,
			Action:     models.AuditActionDocumentExpire,
			Resource:   "document",
			ResourceID: &doc.ID,
			NewValues:  mustJSON(map[string]interface{}{"status": models.DocumentStatusExpired, "validFrom": doc.ValidFrom}),
		})
	}
	if len(expired) > 0 {
		s.logger.Info("expired approved documents", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// HandleJob adapts Sweep to the job queue handler contract.
func (s *ExpiryService) HandleJob(ctx context.Context, _ jobs.Job) error {
	_, err := s.Sweep(ctx)
	return err
}

func (s *ExpiryService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", log.Action), zap.Error(err))
	}
}
