package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type historyDocsStub struct {
	docs        map[string]*models.Document
	predecessor map[string]*models.Document
	lineage     []models.Document
	validAt     *models.Document
}

func newHistoryDocsStub() *historyDocsStub {
	return &historyDocsStub{
		docs:        make(map[string]*models.Document),
		predecessor: make(map[string]*models.Document),
	}
}

func (h *historyDocsStub) FindByID(ctx context.Context, tenantID, id string) (*models.Document, error) {
	if doc, ok := h.docs[id]; ok {
		return doc, nil
	}
	return nil, sql.ErrNoRows
}

func (h *historyDocsStub) ListByOwnerAndType(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, includeInactive bool) ([]models.Document, error) {
	return h.lineage, nil
}

func (h *historyDocsStub) FindValidAt(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, ts time.Time) (*models.Document, error) {
	if h.validAt == nil {
		return nil, sql.ErrNoRows
	}
	return h.validAt, nil
}

func (h *historyDocsStub) FindSupersededBy(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	if doc, ok := h.predecessor[documentID]; ok {
		return doc, nil
	}
	return nil, sql.ErrNoRows
}

type historyRelationsStub struct {
	byDocument map[string][]models.Relation
	byConsumer map[string][]models.Relation
}

func (h *historyRelationsStub) ListActiveByDocument(ctx context.Context, tenantID, documentID string, purpose *models.RelationPurpose) ([]models.Relation, error) {
	return h.byDocument[documentID], nil
}

func (h *historyRelationsStub) ListActiveByConsumer(ctx context.Context, tenantID string, consumer models.ConsumerRef, purpose *models.RelationPurpose) ([]models.Relation, error) {
	relations := h.byConsumer[string(consumer.Kind)+"|"+consumer.ID]
	if purpose == nil {
		return relations, nil
	}
	filtered := make([]models.Relation, 0, len(relations))
	for _, rel := range relations {
		if rel.Purpose == *purpose {
			filtered = append(filtered, rel)
		}
	}
	return filtered, nil
}

type auditTrailStub struct {
	logs []models.AuditLog
}

func (a *auditTrailStub) ListByResource(ctx context.Context, tenantID, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	if limit > 0 && len(a.logs) > limit {
		return a.logs[:limit], nil
	}
	return a.logs, nil
}

func (h *historyRelationsStub) ListUsageByDocumentIDs(ctx context.Context, tenantID string, documentIDs []string) (map[string][]models.Relation, error) {
	result := make(map[string][]models.Relation)
	for _, id := range documentIDs {
		if relations, ok := h.byDocument[id]; ok {
			result[id] = relations
		}
	}
	return result, nil
}

func personOwner() models.OwnerRef {
	return models.OwnerRef{Kind: models.OwnerKindPerson, ID: "person-1"}
}

func TestHistoryServiceSupersessionChain(t *testing.T) {
	docs := newHistoryDocsStub()
	v3 := activeDocument("doc-3", 3)
	v2 := activeDocument("doc-2", 2)
	v2.IsActive = false
	v1 := activeDocument("doc-1", 1)
	v1.IsActive = false
	docs.docs["doc-3"] = &v3
	docs.predecessor["doc-3"] = &v2
	docs.predecessor["doc-2"] = &v1

	svc := NewHistoryService(docs, &historyRelationsStub{}, nil, nil, 0, nil)
	chain, err := svc.SupersessionChain(context.Background(), "tenant-1", "doc-3")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, "doc-3", chain[0].ID)
	require.Equal(t, "doc-2", chain[1].ID)
	require.Equal(t, "doc-1", chain[2].ID)
}

func TestHistoryServiceSupersessionChainDetectsCycle(t *testing.T) {
	docs := newHistoryDocsStub()
	v2 := activeDocument("doc-2", 2)
	v1 := activeDocument("doc-1", 1)
	docs.docs["doc-2"] = &v2
	docs.predecessor["doc-2"] = &v1
	docs.predecessor["doc-1"] = &v2

	svc := NewHistoryService(docs, &historyRelationsStub{}, nil, nil, 0, nil)
	_, err := svc.SupersessionChain(context.Background(), "tenant-1", "doc-2")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestHistoryServiceValidAt(t *testing.T) {
	docs := newHistoryDocsStub()
	svc := NewHistoryService(docs, &historyRelationsStub{}, nil, nil, 0, nil)
	ts := time.Now().UTC().Add(-time.Hour)

	_, err := svc.ValidAt(context.Background(), "tenant-1", personOwner(), models.DocumentTypePayslip, ts)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	match := activeDocument("doc-1", 1)
	docs.validAt = &match
	found, err := svc.ValidAt(context.Background(), "tenant-1", personOwner(), models.DocumentTypePayslip, ts)
	require.NoError(t, err)
	require.Equal(t, "doc-1", found.ID)

	_, err = svc.ValidAt(context.Background(), "tenant-1", personOwner(), "MIXTAPE", ts)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestHistoryServiceTimeline(t *testing.T) {
	docs := newHistoryDocsStub()
	v2 := activeDocument("doc-2", 2)
	v1 := activeDocument("doc-1", 1)
	v1.IsActive = false
	docs.lineage = []models.Document{v2, v1}

	relations := &historyRelationsStub{byDocument: map[string][]models.Relation{
		"doc-2": {{ID: "rel-2", DocumentID: "doc-2", ConsumerKind: models.ConsumerKindLoanApplication, ConsumerID: "loan-2", Purpose: models.PurposeUsage}},
		"doc-1": {{ID: "rel-1", DocumentID: "doc-1", ConsumerKind: models.ConsumerKindLoanApplication, ConsumerID: "loan-1", Purpose: models.PurposeUsage}},
	}}

	svc := NewHistoryService(docs, relations, nil, newCacheStub(), time.Minute, nil)
	entries, err := svc.Timeline(context.Background(), "tenant-1", personOwner(), models.DocumentTypePayslip)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "doc-2", entries[0].Document.ID)
	require.Equal(t, []models.ConsumerRef{{Kind: models.ConsumerKindLoanApplication, ID: "loan-2"}}, entries[0].Consumers)
	require.Equal(t, "doc-1", entries[1].Document.ID)

	// Cached: a second call survives the stub being emptied.
	docs.lineage = nil
	cached, err := svc.Timeline(context.Background(), "tenant-1", personOwner(), models.DocumentTypePayslip)
	require.NoError(t, err)
	require.Len(t, cached, 2)
}

func TestHistoryServiceConsumersOf(t *testing.T) {
	docs := newHistoryDocsStub()
	doc := activeDocument("doc-1", 1)
	docs.docs["doc-1"] = &doc
	relations := &historyRelationsStub{byDocument: map[string][]models.Relation{
		"doc-1": {
			{ID: "rel-1", Purpose: models.PurposeOwnership, ConsumerKind: models.ConsumerKindPerson, ConsumerID: "person-1"},
			{ID: "rel-2", Purpose: models.PurposeUsage, ConsumerKind: models.ConsumerKindLoanApplication, ConsumerID: "loan-1"},
		},
	}}

	svc := NewHistoryService(docs, relations, nil, nil, 0, nil)
	list, err := svc.ConsumersOf(context.Background(), "tenant-1", "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = svc.ConsumersOf(context.Background(), "tenant-1", "missing")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHistoryServiceDocumentsForConsumer(t *testing.T) {
	relations := &historyRelationsStub{byConsumer: map[string][]models.Relation{
		"LOAN_APPLICATION|loan-1": {
			{ID: "rel-1", DocumentID: "doc-1", Purpose: models.PurposeUsage, ConsumerKind: models.ConsumerKindLoanApplication, ConsumerID: "loan-1"},
			{ID: "rel-2", DocumentID: "doc-2", Purpose: models.PurposeReference, ConsumerKind: models.ConsumerKindLoanApplication, ConsumerID: "loan-1"},
		},
	}}
	svc := NewHistoryService(newHistoryDocsStub(), relations, nil, nil, 0, nil)
	consumer := models.ConsumerRef{Kind: models.ConsumerKindLoanApplication, ID: "loan-1"}

	list, err := svc.DocumentsForConsumer(context.Background(), "tenant-1", consumer, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)

	usage := models.PurposeUsage
	filtered, err := svc.DocumentsForConsumer(context.Background(), "tenant-1", consumer, &usage)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "doc-1", filtered[0].DocumentID)

	_, err = svc.DocumentsForConsumer(context.Background(), "tenant-1", models.ConsumerRef{Kind: "WIDGET", ID: "w-1"}, nil)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestHistoryServiceAuditTrail(t *testing.T) {
	docs := newHistoryDocsStub()
	doc := activeDocument("doc-1", 1)
	docs.docs["doc-1"] = &doc
	audit := &auditTrailStub{logs: []models.AuditLog{
		{ID: "log-2", Action: models.AuditActionDocumentReview},
		{ID: "log-1", Action: models.AuditActionDocumentUpload},
	}}

	svc := NewHistoryService(docs, &historyRelationsStub{}, audit, nil, 0, nil)
	logs, err := svc.AuditTrail(context.Background(), "tenant-1", "doc-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, models.AuditActionDocumentReview, logs[0].Action)

	limited, err := svc.AuditTrail(context.Background(), "tenant-1", "doc-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = svc.AuditTrail(context.Background(), "tenant-1", "missing", 10)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
