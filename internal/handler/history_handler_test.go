package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/middleware"
	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type historyServiceMock struct {
	chain        []models.Document
	validAt      *models.Document
	validErr     error
	timeline     []dto.TimelineEntry
	related      []models.Relation
	held         []models.Relation
	heldConsumer models.ConsumerRef
	heldPurpose  *models.RelationPurpose
	trail        []models.AuditLog
	trailLimit   int
}

func (m *historyServiceMock) SupersessionChain(ctx context.Context, tenantID, documentID string) ([]models.Document, error) {
	return m.chain, nil
}

func (m *historyServiceMock) ValidAt(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, ts time.Time) (*models.Document, error) {
	if m.validErr != nil {
		return nil, m.validErr
	}
	return m.validAt, nil
}

func (m *historyServiceMock) Timeline(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType) ([]dto.TimelineEntry, error) {
	return m.timeline, nil
}

func (m *historyServiceMock) ConsumersOf(ctx context.Context, tenantID, documentID string) ([]models.Relation, error) {
	return m.related, nil
}

func (m *historyServiceMock) DocumentsForConsumer(ctx context.Context, tenantID string, consumer models.ConsumerRef, purpose *models.RelationPurpose) ([]models.Relation, error) {
	m.heldConsumer = consumer
	m.heldPurpose = purpose
	return m.held, nil
}

func (m *historyServiceMock) AuditTrail(ctx context.Context, tenantID, documentID string, limit int) ([]models.AuditLog, error) {
	m.trailLimit = limit
	return m.trail, nil
}

func newHistoryTestContext(t *testing.T) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextTenantKey, "tenant-1")
	return w, c
}

func timelineFixture() []dto.TimelineEntry {
	now := time.Now().UTC()
	earlier := now.Add(-time.Hour)
	v2 := models.Document{ID: "doc-2", VersionNumber: 2, Status: models.DocumentStatusPending, IsActive: true, ValidFrom: now}
	v1 := models.Document{ID: "doc-1", VersionNumber: 1, Status: models.DocumentStatusApproved, ValidFrom: earlier, ValidTo: &now}
	return []dto.TimelineEntry{
		{Document: &v2, Consumers: []models.ConsumerRef{{Kind: models.ConsumerKindLoanApplication, ID: "loan-2"}}},
		{Document: &v1, Consumers: []models.ConsumerRef{{Kind: models.ConsumerKindLoanApplication, ID: "loan-1"}}},
	}
}

func TestHistoryHandlerChain(t *testing.T) {
	svc := &historyServiceMock{chain: []models.Document{{ID: "doc-2"}, {ID: "doc-1"}}}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/doc-2/chain", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-2"}}

	h.Chain(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doc-1")
}

func TestHistoryHandlerValidAt(t *testing.T) {
	doc := models.Document{ID: "doc-1", VersionNumber: 1}
	svc := &historyServiceMock{validAt: &doc}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	at := time.Now().UTC().Format(time.RFC3339)
	req, _ := http.NewRequest(http.MethodGet, "/documents/valid-at?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP&at="+at, nil)
	c.Request = req

	h.ValidAt(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHistoryHandlerValidAtBadTimestamp(t *testing.T) {
	h := NewHistoryHandler(&historyServiceMock{}, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/valid-at?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP&at=yesterday", nil)
	c.Request = req

	h.ValidAt(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryHandlerValidAtNotFound(t *testing.T) {
	svc := &historyServiceMock{validErr: appErrors.Clone(appErrors.ErrNotFound, "no version")}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	at := time.Now().UTC().Format(time.RFC3339)
	req, _ := http.NewRequest(http.MethodGet, "/documents/valid-at?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP&at="+at, nil)
	c.Request = req

	h.ValidAt(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryHandlerTimeline(t *testing.T) {
	svc := &historyServiceMock{timeline: timelineFixture()}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/timeline?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP", nil)
	c.Request = req

	h.Timeline(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "loan-2")
}

func TestHistoryHandlerTimelineExportCSV(t *testing.T) {
	svc := &historyServiceMock{timeline: timelineFixture()}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/timeline/export?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP&format=csv", nil)
	c.Request = req

	h.TimelineExport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timeline-person-1-payslip.csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Version")
	assert.Contains(t, lines[1], "doc-2")
	assert.Contains(t, lines[2], "doc-1")
}

func TestHistoryHandlerTimelineExportPDF(t *testing.T) {
	svc := &historyServiceMock{timeline: timelineFixture()}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/timeline/export?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP&format=pdf", nil)
	c.Request = req

	h.TimelineExport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func TestHistoryHandlerTimelineExportBadFormat(t *testing.T) {
	h := NewHistoryHandler(&historyServiceMock{}, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/timeline/export?owner_kind=PERSON&owner_id=person-1&type=PAYSLIP&format=xml", nil)
	c.Request = req

	h.TimelineExport(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryHandlerConsumers(t *testing.T) {
	svc := &historyServiceMock{related: []models.Relation{
		{ID: "rel-1", Purpose: models.PurposeOwnership, ConsumerKind: models.ConsumerKindPerson, ConsumerID: "person-1"},
	}}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/doc-1/consumers", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.Consumers(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "OWNERSHIP")
}

func TestHistoryHandlerConsumerDocuments(t *testing.T) {
	svc := &historyServiceMock{held: []models.Relation{
		{ID: "rel-1", DocumentID: "doc-1", Purpose: models.PurposeUsage, ConsumerKind: models.ConsumerKindLoanApplication, ConsumerID: "loan-1"},
	}}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/consumers/documents?consumer_kind=loan_application&consumer_id=loan-1&purpose=usage", nil)
	c.Request = req

	h.ConsumerDocuments(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "doc-1")
	assert.Equal(t, models.ConsumerKindLoanApplication, svc.heldConsumer.Kind)
	require.NotNil(t, svc.heldPurpose)
	assert.Equal(t, models.PurposeUsage, *svc.heldPurpose)
}

func TestHistoryHandlerConsumerDocumentsBadPurpose(t *testing.T) {
	h := NewHistoryHandler(&historyServiceMock{}, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/consumers/documents?consumer_kind=LOAN_APPLICATION&consumer_id=loan-1&purpose=GUESSING", nil)
	c.Request = req

	h.ConsumerDocuments(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryHandlerAuditTrail(t *testing.T) {
	svc := &historyServiceMock{trail: []models.AuditLog{
		{ID: "log-1", Action: models.AuditActionDocumentUpload},
		{ID: "log-2", Action: models.AuditActionDocumentReview},
	}}
	h := NewHistoryHandler(svc, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/doc-1/audit?limit=25", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.AuditTrail(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, svc.trailLimit)
	assert.Contains(t, w.Body.String(), "DOCUMENT_REVIEW")
	assert.Contains(t, w.Body.String(), "pagination")
}

func TestHistoryHandlerAuditTrailBadLimit(t *testing.T) {
	h := NewHistoryHandler(&historyServiceMock{}, nil, nil)
	w, c := newHistoryTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/doc-1/audit?limit=minus-one", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.AuditTrail(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
