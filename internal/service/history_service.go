package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type historyDocumentStore interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.Document, error)
	ListByOwnerAndType(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, includeInactive bool) ([]models.Document, error)
	FindValidAt(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, ts time.Time) (*models.Document, error)
	FindSupersededBy(ctx context.Context, tenantID, documentID string) (*models.Document, error)
}

type historyRelationStore interface {
	ListActiveByDocument(ctx context.Context, tenantID, documentID string, purpose *models.RelationPurpose) ([]models.Relation, error)
	ListActiveByConsumer(ctx context.Context, tenantID string, consumer models.ConsumerRef, purpose *models.RelationPurpose) ([]models.Relation, error)
	ListUsageByDocumentIDs(ctx context.Context, tenantID string, documentIDs []string) (map[string][]models.Relation, error)
}

type auditTrailStore interface {
	ListByResource(ctx context.Context, tenantID, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// HistoryService is the read side: it reconstructs supersession chains,
// answers point-in-time lookups and assembles per-consumer timelines for
// audit callers. It never mutates.
type HistoryService struct {
	docs      historyDocumentStore
	relations historyRelationStore
	audit     auditTrailStore
	cache     queryCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewHistoryService constructs the service.
func NewHistoryService(docs historyDocumentStore, relations historyRelationStore, audit auditTrailStore, cache queryCache, cacheTTL time.Duration, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{docs: docs, relations: relations, audit: audit, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// SupersessionChain walks the lineage backward from the given document by
// following the inverse of the supersession pointer. The result is
// newest-first, ending at the first upload.
func (s *HistoryService) SupersessionChain(ctx context.Context, tenantID, documentID string) ([]models.Document, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	doc, err := s.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found: "+documentID)
	}

	chain := []models.Document{*doc}
	seen := map[string]struct{}{doc.ID: {}}
	current := doc
	for {
		prev, err := s.docs.FindSupersededBy(ctx, tenantID, current.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to walk supersession chain")
		}
		if _, dup := seen[prev.ID]; dup {
			return nil, appErrors.Clone(appErrors.ErrInternal, "supersession chain contains a cycle at "+prev.ID)
		}
		seen[prev.ID] = struct{}{}
		chain = append(chain, *prev)
		current = prev
	}
	return chain, nil
}

// ValidAt returns the document whose validity interval contained the given
// instant, or NotFound when the lineage had no valid version then.
func (s *HistoryService) ValidAt(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, ts time.Time) (*models.Document, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := owner.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if !models.ValidDocumentType(docType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", docType))
	}
	doc, err := s.docs.FindValidAt(ctx, tenantID, owner, docType, ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("no %s document was valid at %s", docType, ts.Format(time.RFC3339)))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve validity lookup")
	}
	return doc, nil
}

// Timeline assembles the lineage newest-first, attaching to every version
// the consumers whose live usage relations still point at it — answering
// "which applications used which version".
func (s *HistoryService) Timeline(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType) ([]dto.TimelineEntry, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := owner.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if !models.ValidDocumentType(docType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", docType))
	}

	cacheKey := fmt.Sprintf("documents:%s:%s:%s:timeline:%s", tenantID, owner.Kind, owner.ID, docType)
	if s.cache != nil {
		var cached []dto.TimelineEntry
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	docs, err := s.docs.ListByOwnerAndType(ctx, tenantID, owner, docType, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lineage")
	}
	ids := make([]string, 0, len(docs))
	for i := range docs {
		ids = append(ids, docs[i].ID)
	}
	usageByDoc, err := s.relations.ListUsageByDocumentIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load usage relations")
	}

	entries := make([]dto.TimelineEntry, 0, len(docs))
	for i := range docs {
		doc := docs[i]
		relations := usageByDoc[doc.ID]
		consumers := make([]models.ConsumerRef, 0, len(relations))
		for _, rel := range relations {
			consumers = append(consumers, rel.Consumer())
		}
		entries = append(entries, dto.TimelineEntry{Document: &doc, Consumers: consumers})
	}

	if s.cache != nil && s.cacheTTL > 0 {
		_ = s.cache.Set(ctx, cacheKey, entries, s.cacheTTL)
	}
	return entries, nil
}

// ConsumersOf returns all live relations for a document, any purpose, for
// audit display.
func (s *HistoryService) ConsumersOf(ctx context.Context, tenantID, documentID string) ([]models.Relation, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if _, err := s.docs.FindByID(ctx, tenantID, documentID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found: "+documentID)
	}
	relations, err := s.relations.ListActiveByDocument(ctx, tenantID, documentID, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list relations")
	}
	return relations, nil
}

// DocumentsForConsumer is the inverse of ConsumersOf: the live relations a
// consumer currently holds, optionally narrowed to one purpose.
func (s *HistoryService) DocumentsForConsumer(ctx context.Context, tenantID string, consumer models.ConsumerRef, purpose *models.RelationPurpose) ([]models.Relation, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := consumer.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	relations, err := s.relations.ListActiveByConsumer(ctx, tenantID, consumer, purpose)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list relations for consumer")
	}
	return relations, nil
}

// AuditTrail returns the recorded audit entries for one document, newest
// first, bounded by limit.
func (s *HistoryService) AuditTrail(ctx context.Context, tenantID, documentID string, limit int) ([]models.AuditLog, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if _, err := s.docs.FindByID(ctx, tenantID, documentID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found: "+documentID)
	}
	logs, err := s.audit.ListByResource(ctx, tenantID, "document", documentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return logs, nil
}
