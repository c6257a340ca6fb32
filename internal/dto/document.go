package dto

import (
	"encoding/json"
	"time"

	"github.com/prestafacil/loandocs-api/internal/models"
)

// UploadDocumentRequest carries the multipart form fields of an upload. The
// file part itself is read by the handler.
type UploadDocumentRequest struct {
	OwnerKind string `form:"owner_kind" binding:"required"`
	OwnerID   string `form:"owner_id" binding:"required"`
	Type      string `form:"type" binding:"required"`
	Metadata  string `form:"metadata"`

	// Optional consumer; when present the upload is attached in the same
	// request.
	ConsumerKind string `form:"consumer_kind"`
	ConsumerID   string `form:"consumer_id"`
}

// AttachRequest associates an existing document with a consumer.
type AttachRequest struct {
	ConsumerKind string `json:"consumerKind" binding:"required"`
	ConsumerID   string `json:"consumerId" binding:"required"`
}

// ReviewDecision enumerates staff review outcomes.
type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "APPROVE"
	ReviewReject  ReviewDecision = "REJECT"
)

// ReviewRequest carries a staff review decision.
type ReviewRequest struct {
	Decision ReviewDecision `json:"decision" binding:"required"`
	Reason   string         `json:"reason"`
}

// UploadInput is the service-level upload payload assembled by the handler.
type UploadInput struct {
	TenantID    string
	Owner       models.OwnerRef     `validate:"required"`
	Type        models.DocumentType `validate:"required"`
	Metadata    json.RawMessage
	Content     []byte `validate:"required"`
	ContentType string
	Consumer    *models.ConsumerRef
}

// ActivationResult reports the outcome of an activation.
type ActivationResult struct {
	Document      *models.Document `json:"document"`
	Superseded    *models.Document `json:"superseded,omitempty"`
	AlreadyActive bool             `json:"alreadyActive"`
}

// AttachResult reports the relation state after an attach call.
type AttachResult struct {
	Document  *models.Document  `json:"document"`
	Ownership *models.Relation  `json:"ownership"`
	Usage     *models.Relation  `json:"usage"`
	Replaced  []models.Relation `json:"replaced,omitempty"`
}

// UploadResult combines the stored document with its attach outcome.
type UploadResult struct {
	Document   *models.Document `json:"document"`
	Superseded *models.Document `json:"superseded,omitempty"`
	Attach     *AttachResult    `json:"attach,omitempty"`
}

// TimelineEntry couples one document version with the consumers whose live
// usage relations point at it.
type TimelineEntry struct {
	Document  *models.Document     `json:"document"`
	Consumers []models.ConsumerRef `json:"consumers"`
}

// DownloadLink is a signed, expiring reference to a document blob.
type DownloadLink struct {
	DocumentID string    `json:"documentId"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
