package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/middleware"
	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
	"github.com/prestafacil/loandocs-api/pkg/export"
	"github.com/prestafacil/loandocs-api/pkg/response"
)

type historyService interface {
	SupersessionChain(ctx context.Context, tenantID, documentID string) ([]models.Document, error)
	ValidAt(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, ts time.Time) (*models.Document, error)
	Timeline(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType) ([]dto.TimelineEntry, error)
	ConsumersOf(ctx context.Context, tenantID, documentID string) ([]models.Relation, error)
	DocumentsForConsumer(ctx context.Context, tenantID string, consumer models.ConsumerRef, purpose *models.RelationPurpose) ([]models.Relation, error)
	AuditTrail(ctx context.Context, tenantID, documentID string, limit int) ([]models.AuditLog, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// HistoryHandler exposes supersession history and audit query endpoints.
type HistoryHandler struct {
	history historyService
	csv     csvRenderer
	pdf     pdfRenderer
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(history historyService, csv csvRenderer, pdf pdfRenderer) *HistoryHandler {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &HistoryHandler{history: history, csv: csv, pdf: pdf}
}

// Chain godoc
// @Summary Supersession chain for a document
// @Tags History
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/chain [get]
func (h *HistoryHandler) Chain(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	chain, err := h.history.SupersessionChain(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chain, nil)
}

// Consumers godoc
// @Summary Consumers attached to a document
// @Tags History
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/consumers [get]
func (h *HistoryHandler) Consumers(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	relations, err := h.history.ConsumersOf(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relations, nil)
}

// ConsumerDocuments godoc
// @Summary Documents a consumer currently holds relations to
// @Tags History
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param consumer_kind query string true "Consumer kind"
// @Param consumer_id query string true "Consumer ID"
// @Param purpose query string false "Relation purpose"
// @Success 200 {object} response.Envelope
// @Router /consumers/documents [get]
func (h *HistoryHandler) ConsumerDocuments(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	consumer := models.ConsumerRef{
		Kind: models.ConsumerKind(strings.ToUpper(strings.TrimSpace(c.Query("consumer_kind")))),
		ID:   strings.TrimSpace(c.Query("consumer_id")),
	}
	var purpose *models.RelationPurpose
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("purpose"))); raw != "" {
		p := models.RelationPurpose(raw)
		if !models.ValidRelationPurpose(p) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown relation purpose %q", c.Query("purpose"))))
			return
		}
		purpose = &p
	}
	relations, err := h.history.DocumentsForConsumer(c.Request.Context(), middleware.TenantFromContext(c), consumer, purpose)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, relations, nil)
}

// AuditTrail godoc
// @Summary Audit entries recorded for a document
// @Tags History
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Param limit query int false "Max entries (default 50)"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/audit [get]
func (h *HistoryHandler) AuditTrail(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	logs, err := h.history.AuditTrail(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, models.NewPagination(1, limit, len(logs)))
}

// ValidAt godoc
// @Summary Document version valid at a point in time
// @Tags History
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param owner_kind query string true "Owner kind"
// @Param owner_id query string true "Owner ID"
// @Param type query string true "Document type"
// @Param at query string true "RFC3339 timestamp"
// @Success 200 {object} response.Envelope
// @Router /documents/valid-at [get]
func (h *HistoryHandler) ValidAt(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	owner, err := ownerFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	docType, err := docTypeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	ts, err := time.Parse(time.RFC3339, c.Query("at"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at must be an RFC3339 timestamp"))
		return
	}
	doc, err := h.history.ValidAt(c.Request.Context(), middleware.TenantFromContext(c), owner, docType, ts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Timeline godoc
// @Summary Version timeline for an owner and type
// @Tags History
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param owner_kind query string true "Owner kind"
// @Param owner_id query string true "Owner ID"
// @Param type query string true "Document type"
// @Success 200 {object} response.Envelope
// @Router /documents/timeline [get]
func (h *HistoryHandler) Timeline(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	owner, err := ownerFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	docType, err := docTypeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.history.Timeline(c.Request.Context(), middleware.TenantFromContext(c), owner, docType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// TimelineExport godoc
// @Summary Export a version timeline as CSV or PDF
// @Tags History
// @Produce octet-stream
// @Param X-Tenant-ID header string true "Tenant"
// @Param owner_kind query string true "Owner kind"
// @Param owner_id query string true "Owner ID"
// @Param type query string true "Document type"
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Router /documents/timeline/export [get]
func (h *HistoryHandler) TimelineExport(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	owner, err := ownerFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	docType, err := docTypeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.Query("format")))
	if format != "csv" && format != "pdf" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	entries, err := h.history.Timeline(c.Request.Context(), middleware.TenantFromContext(c), owner, docType)
	if err != nil {
		response.Error(c, err)
		return
	}
	dataset := timelineDataset(entries)

	var payload []byte
	var contentType string
	switch format {
	case "csv":
		payload, err = h.csv.Render(dataset)
		contentType = "text/csv"
	case "pdf":
		title := fmt.Sprintf("Document timeline %s %s / %s", owner.Kind, owner.ID, docType)
		payload, err = h.pdf.Render(dataset, title)
		contentType = "application/pdf"
	}
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timeline export"))
		return
	}

	filename := fmt.Sprintf("timeline-%s-%s.%s", strings.ToLower(owner.ID), strings.ToLower(string(docType)), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

func timelineDataset(entries []dto.TimelineEntry) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Version", "Document ID", "Status", "Active", "Valid From", "Valid To", "Consumers"},
	}
	for _, entry := range entries {
		doc := entry.Document
		if doc == nil {
			continue
		}
		validTo := ""
		if doc.ValidTo != nil {
			validTo = doc.ValidTo.Format(time.RFC3339)
		}
		consumers := make([]string, 0, len(entry.Consumers))
		for _, consumer := range entry.Consumers {
			consumers = append(consumers, fmt.Sprintf("%s:%s", consumer.Kind, consumer.ID))
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Version":     strconv.Itoa(doc.VersionNumber),
			"Document ID": doc.ID,
			"Status":      string(doc.Status),
			"Active":      strconv.FormatBool(doc.IsActive),
			"Valid From":  doc.ValidFrom.Format(time.RFC3339),
			"Valid To":    validTo,
			"Consumers":   strings.Join(consumers, "; "),
		})
	}
	return dataset
}

func docTypeFromQuery(c *gin.Context) (models.DocumentType, error) {
	raw := strings.ToUpper(strings.TrimSpace(c.Query("type")))
	docType := models.DocumentType(raw)
	if !models.ValidDocumentType(docType) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", c.Query("type")))
	}
	return docType, nil
}
