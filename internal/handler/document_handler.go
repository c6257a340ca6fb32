package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/middleware"
	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
	"github.com/prestafacil/loandocs-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, input dto.UploadInput) (*dto.UploadResult, error)
	Review(ctx context.Context, tenantID, documentID string, req dto.ReviewRequest) (*models.Document, error)
	Get(ctx context.Context, tenantID, documentID string) (*models.Document, error)
	QueryActive(ctx context.Context, tenantID string, owner models.OwnerRef, docType *models.DocumentType) ([]models.Document, error)
	GenerateDownloadURL(ctx context.Context, tenantID, documentID string) (*dto.DownloadLink, error)
	ResolveDownload(ctx context.Context, token string) ([]byte, string, error)
}

type attachmentService interface {
	Attach(ctx context.Context, tenantID, documentID string, consumer models.ConsumerRef) (*dto.AttachResult, error)
}

// DocumentHandler exposes the document lifecycle REST endpoints.
type DocumentHandler struct {
	documents   documentService
	attachments attachmentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(documents documentService, attachments attachmentService) *DocumentHandler {
	return &DocumentHandler{documents: documents, attachments: attachments}
}

// Upload godoc
// @Summary Upload a document version
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param owner_kind formData string true "Owner kind (PERSON or COMPANY)"
// @Param owner_id formData string true "Owner ID"
// @Param type formData string true "Document type"
// @Param metadata formData string false "JSON metadata"
// @Param consumer_kind formData string false "Optional consumer kind"
// @Param consumer_id formData string false "Optional consumer ID"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.documents == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	var req dto.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
		return
	}

	input := dto.UploadInput{
		TenantID: middleware.TenantFromContext(c),
		Owner: models.OwnerRef{
			Kind: models.OwnerKind(strings.ToUpper(strings.TrimSpace(req.OwnerKind))),
			ID:   strings.TrimSpace(req.OwnerID),
		},
		Type:        models.DocumentType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Content:     content,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}
	if req.Metadata != "" {
		input.Metadata = json.RawMessage(req.Metadata)
	}
	if req.ConsumerKind != "" || req.ConsumerID != "" {
		input.Consumer = &models.ConsumerRef{
			Kind: models.ConsumerKind(strings.ToUpper(strings.TrimSpace(req.ConsumerKind))),
			ID:   strings.TrimSpace(req.ConsumerID),
		}
	}

	result, err := h.documents.Upload(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Attach godoc
// @Summary Attach a document to a consumer
// @Tags Documents
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Param payload body dto.AttachRequest true "Consumer reference"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/attach [post]
func (h *DocumentHandler) Attach(c *gin.Context) {
	if h.attachments == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "attachment service not configured"))
		return
	}
	var req dto.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid attach payload"))
		return
	}
	consumer := models.ConsumerRef{
		Kind: models.ConsumerKind(strings.ToUpper(strings.TrimSpace(req.ConsumerKind))),
		ID:   strings.TrimSpace(req.ConsumerID),
	}
	result, err := h.attachments.Attach(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"), consumer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Review godoc
// @Summary Apply a staff review decision
// @Tags Documents
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Param payload body dto.ReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/review [post]
func (h *DocumentHandler) Review(c *gin.Context) {
	if h.documents == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return
	}
	req.Decision = dto.ReviewDecision(strings.ToUpper(strings.TrimSpace(string(req.Decision))))
	doc, err := h.documents.Review(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Get godoc
// @Summary Get one document
// @Tags Documents
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	if h.documents == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Active godoc
// @Summary List active documents for an owner
// @Tags Documents
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param owner_kind query string true "Owner kind"
// @Param owner_id query string true "Owner ID"
// @Param type query string false "Document type filter"
// @Success 200 {object} response.Envelope
// @Router /documents/active [get]
func (h *DocumentHandler) Active(c *gin.Context) {
	if h.documents == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	owner, err := ownerFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var docType *models.DocumentType
	if raw := c.Query("type"); raw != "" {
		dt := models.DocumentType(strings.ToUpper(strings.TrimSpace(raw)))
		if !models.ValidDocumentType(dt) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", raw)))
			return
		}
		docType = &dt
	}
	docs, err := h.documents.QueryActive(c.Request.Context(), middleware.TenantFromContext(c), owner, docType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// DownloadURL godoc
// @Summary Generate a signed download link
// @Tags Documents
// @Produce json
// @Param X-Tenant-ID header string true "Tenant"
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	if h.documents == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	link, err := h.documents.GenerateDownloadURL(c.Request.Context(), middleware.TenantFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Resolve a signed download token
// @Tags Documents
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /downloads/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	if h.documents == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	data, contentType, err := h.documents.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment")
	c.Data(http.StatusOK, contentType, data)
}

func ownerFromQuery(c *gin.Context) (models.OwnerRef, error) {
	owner := models.OwnerRef{
		Kind: models.OwnerKind(strings.ToUpper(strings.TrimSpace(c.Query("owner_kind")))),
		ID:   strings.TrimSpace(c.Query("owner_id")),
	}
	if err := owner.Validate(); err != nil {
		return models.OwnerRef{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return owner, nil
}
