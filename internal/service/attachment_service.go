package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type documentActivator interface {
	Activate(ctx context.Context, tenantID, documentID string) (*dto.ActivationResult, error)
}

type relationStore interface {
	Ensure(ctx context.Context, tenantID, documentID string, consumer models.ConsumerRef, purpose models.RelationPurpose) (*models.Relation, error)
	Tombstone(ctx context.Context, tenantID, relationID string) error
	FindUsageToReplace(ctx context.Context, tenantID string, consumer models.ConsumerRef, owner models.OwnerRef, docType models.DocumentType, excludeDocumentID string) ([]models.Relation, error)
}

// AttachmentService orchestrates "document D is being used by consumer C",
// deciding between a replacement within the same consumer and a reuse
// across consumers.
type AttachmentService struct {
	activation documentActivator
	relations  relationStore
	logger     *zap.Logger
	nowFn      func() time.Time
}

// NewAttachmentService constructs the service.
func NewAttachmentService(activation documentActivator, relations relationStore, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{
		activation: activation,
		relations:  relations,
		logger:     logger,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Attach associates a document with a consumer for the USAGE purpose.
// Activation supersedes any other active document of the same type for the
// same owner; usage relations belonging to other consumers are left alone —
// a historical application keeps referencing the version it actually used.
// Attach is idempotent.
func (s *AttachmentService) Attach(ctx context.Context, tenantID, documentID string, consumer models.ConsumerRef) (*dto.AttachResult, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := consumer.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	activation, err := s.activation.Activate(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	doc := activation.Document

	ownership, err := s.relations.Ensure(ctx, tenantID, doc.ID, models.ConsumerFromOwner(doc.Owner()), models.PurposeOwnership)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to ensure ownership relation")
	}

	// Replacement-vs-reuse: only THIS consumer's prior usage of another
	// document of the same type gets tombstoned.
	replaced, err := s.relations.FindUsageToReplace(ctx, tenantID, consumer, doc.Owner(), doc.Type, doc.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve usage relations")
	}
	for i := range replaced {
		if err := s.relations.Tombstone(ctx, tenantID, replaced[i].ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tombstone replaced relation")
		}
		deletedAt := s.nowFn()
		replaced[i].DeletedAt = &deletedAt
	}

	usage, err := s.relations.Ensure(ctx, tenantID, doc.ID, consumer, models.PurposeUsage)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to ensure usage relation")
	}

	if len(replaced) > 0 {
		s.logger.Info("usage relation replaced",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", doc.ID),
			zap.String("consumer_kind", string(consumer.Kind)),
			zap.String("consumer_id", consumer.ID),
			zap.Int("replaced", len(replaced)))
	}

	return &dto.AttachResult{
		Document:  doc,
		Ownership: ownership,
		Usage:     usage,
		Replaced:  replaced,
	}, nil
}
