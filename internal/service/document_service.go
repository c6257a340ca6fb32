package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/models"
	"github.com/prestafacil/loandocs-api/pkg/config"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, tenantID, id string) (*models.Document, error)
	ListActive(ctx context.Context, tenantID string, owner models.OwnerRef, docType *models.DocumentType) ([]models.Document, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status models.DocumentStatus, reason *string) error
}

type blobStore interface {
	Put(data []byte, contentType string) (string, error)
	Get(locator string) ([]byte, error)
}

type downloadSigner interface {
	Generate(documentID, locator string) (string, time.Time, error)
	Parse(token string) (documentID, locator string, expiresAt time.Time, err error)
}

type attachmentRunner interface {
	Attach(ctx context.Context, tenantID, documentID string, consumer models.ConsumerRef) (*dto.AttachResult, error)
}

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type queryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// DocumentService is the application surface for uploads, review decisions
// and active-document queries.
type DocumentService struct {
	docs       documentStore
	relations  relationStore
	blobs      blobStore
	signer     downloadSigner
	activation documentActivator
	attach     attachmentRunner
	audit      auditSink
	cache      queryCache
	cfg        config.DocumentsConfig
	validate   *validator.Validate
	logger     *zap.Logger
	nowFn      func() time.Time
}

// NewDocumentService constructs the service.
func NewDocumentService(
	docs documentStore,
	relations relationStore,
	blobs blobStore,
	signer downloadSigner,
	activation documentActivator,
	attach attachmentRunner,
	audit auditSink,
	cache queryCache,
	cfg config.DocumentsConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		docs:       docs,
		relations:  relations,
		blobs:      blobs,
		signer:     signer,
		activation: activation,
		attach:     attach,
		audit:      audit,
		cache:      cache,
		cfg:        cfg,
		validate:   validate,
		logger:     logger,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores the blob, creates the document row and activates it,
// superseding the previous version of the same type for the owner. When a
// consumer is supplied the attachment workflow runs in the same request.
func (s *DocumentService) Upload(ctx context.Context, input dto.UploadInput) (*dto.UploadResult, error) {
	if input.TenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}
	if !models.ValidDocumentType(input.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", input.Type))
	}
	if s.cfg.MaxFileSizeBytes > 0 && int64(len(input.Content)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.ErrPayloadTooLarge
	}
	if !s.mimeAllowed(input.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("content type %q not allowed", input.ContentType))
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "metadata must be valid JSON")
	}
	if input.Consumer != nil {
		if err := input.Consumer.Validate(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
	}

	locator, err := s.blobs.Put(input.Content, input.ContentType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to store document blob")
	}

	sum := sha256.Sum256(input.Content)
	doc := &models.Document{
		TenantID:    input.TenantID,
		OwnerKind:   input.Owner.Kind,
		OwnerID:     input.Owner.ID,
		Type:        input.Type,
		Status:      models.DocumentStatusPending,
		ValidFrom:   s.nowFn(),
		Metadata:    input.Metadata,
		Checksum:    hex.EncodeToString(sum[:]),
		BlobLocator: locator,
		ContentType: input.ContentType,
		SizeBytes:   int64(len(input.Content)),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	result := &dto.UploadResult{}
	if input.Consumer != nil {
		attachResult, err := s.attach.Attach(ctx, input.TenantID, doc.ID, *input.Consumer)
		if err != nil {
			return nil, err
		}
		result.Document = attachResult.Document
		result.Attach = attachResult
	} else {
		activation, err := s.activation.Activate(ctx, input.TenantID, doc.ID)
		if err != nil {
			return nil, err
		}
		if _, err := s.relations.Ensure(ctx, input.TenantID, doc.ID, models.ConsumerFromOwner(input.Owner), models.PurposeOwnership); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to ensure ownership relation")
		}
		result.Document = activation.Document
		result.Superseded = activation.Superseded
	}

	s.invalidateOwner(ctx, input.TenantID, input.Owner)
	s.emitAudit(ctx, &models.AuditLog{
		TenantID:   input.TenantID,
		Action:     models.AuditActionDocumentUpload,
		Resource:   "document",
		ResourceID: &doc.ID,
		NewValues:  mustJSON(map[string]interface{}{"type": doc.Type, "owner": input.Owner, "checksum": doc.Checksum}),
	})
	if result.Document != nil {
		activated := map[string]interface{}{"version": result.Document.VersionNumber}
		if result.Superseded != nil {
			activated["supersededId"] = result.Superseded.ID
		}
		s.emitAudit(ctx, &models.AuditLog{
			TenantID:   input.TenantID,
			Action:     models.AuditActionDocumentActivate,
			Resource:   "document",
			ResourceID: &doc.ID,
			NewValues:  mustJSON(activated),
		})
	}

	return result, nil
}

// Review applies a staff decision. Only PENDING documents can be approved
// or rejected; rejection does not deactivate — the rejected row stays the
// most recent attempt until something replaces it.
func (s *DocumentService) Review(ctx context.Context, tenantID, documentID string, req dto.ReviewRequest) (*models.Document, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	doc, err := s.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found: "+documentID)
	}

	var target models.DocumentStatus
	switch req.Decision {
	case dto.ReviewApprove:
		target = models.DocumentStatusApproved
	case dto.ReviewReject:
		target = models.DocumentStatusRejected
		if strings.TrimSpace(req.Reason) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "rejection requires a reason")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown review decision %q", req.Decision))
	}

	if !models.CanTransition(doc.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition document %s from %s to %s", doc.ID, doc.Status, target))
	}

	var reason *string
	if target == models.DocumentStatusRejected {
		trimmed := strings.TrimSpace(req.Reason)
		reason = &trimmed
	}
	if err := s.docs.UpdateStatus(ctx, tenantID, doc.ID, target, reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document status")
	}

	oldStatus := doc.Status
	doc.Status = target
	doc.RejectionReason = reason
	doc.UpdatedAt = s.nowFn()

	s.invalidateOwner(ctx, tenantID, doc.Owner())
	s.emitAudit(ctx, &models.AuditLog{
		TenantID:   tenantID,
		Action:     models.AuditActionDocumentReview,
		Resource:   "document",
		ResourceID: &doc.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": oldStatus}),
		NewValues:  mustJSON(map[string]interface{}{"status": target, "reason": req.Reason}),
	})

	return doc, nil
}

// Get returns one document.
func (s *DocumentService) Get(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	doc, err := s.docs.FindByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found: "+documentID)
	}
	return doc, nil
}

// QueryActive returns the active documents for an owner, optionally
// filtered by type, with a cache-aside read path.
func (s *DocumentService) QueryActive(ctx context.Context, tenantID string, owner models.OwnerRef, docType *models.DocumentType) ([]models.Document, error) {
	if tenantID == "" {
		return nil, appErrors.ErrTenantRequired
	}
	if err := owner.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	cacheKey := s.ownerCachePrefix(tenantID, owner) + ":active"
	if docType != nil {
		cacheKey += ":" + string(*docType)
	}
	if s.cache != nil {
		var cached []models.Document
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	docs, err := s.docs.ListActive(ctx, tenantID, owner, docType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query active documents")
	}
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		_ = s.cache.Set(ctx, cacheKey, docs, s.cfg.CacheTTL)
	}
	return docs, nil
}

// GenerateDownloadURL returns a signed, expiring link to the blob.
func (s *DocumentService) GenerateDownloadURL(ctx context.Context, tenantID, documentID string) (*dto.DownloadLink, error) {
	doc, err := s.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.BlobLocator)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	s.emitAudit(ctx, &models.AuditLog{
		TenantID:   tenantID,
		Action:     models.AuditActionDocumentDownload,
		Resource:   "document",
		ResourceID: &doc.ID,
		NewValues:  mustJSON(map[string]interface{}{"expiresAt": expiresAt}),
	})
	return &dto.DownloadLink{
		DocumentID: doc.ID,
		URL:        "/downloads/" + token,
		ExpiresAt:  expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and returns the blob bytes.
func (s *DocumentService) ResolveDownload(ctx context.Context, token string) ([]byte, string, error) {
	documentID, locator, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrSignedURLInvalid, "")
	}
	data, err := s.blobs.Get(locator)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to read document blob")
	}
	s.logger.Debug("document downloaded", zap.String("document_id", documentID))
	return data, contentTypeFromLocator(locator), nil
}

func (s *DocumentService) mimeAllowed(contentType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(contentType)) {
			return true
		}
	}
	return false
}

func (s *DocumentService) ownerCachePrefix(tenantID string, owner models.OwnerRef) string {
	return fmt.Sprintf("documents:%s:%s:%s", tenantID, owner.Kind, owner.ID)
}

func (s *DocumentService) invalidateOwner(ctx context.Context, tenantID string, owner models.OwnerRef) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, s.ownerCachePrefix(tenantID, owner)); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}

func (s *DocumentService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", log.Action), zap.Error(err))
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func contentTypeFromLocator(locator string) string {
	switch {
	case strings.HasSuffix(locator, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(locator, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(locator, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
