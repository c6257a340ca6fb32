package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionDocumentUpload   = "DOCUMENT_UPLOAD"
	AuditActionDocumentActivate = "DOCUMENT_ACTIVATE"
	AuditActionDocumentAttach   = "DOCUMENT_ATTACH"
	AuditActionDocumentReview   = "DOCUMENT_REVIEW"
	AuditActionDocumentExpire   = "DOCUMENT_EXPIRE"
	AuditActionDocumentDownload = "DOCUMENT_DOWNLOAD"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenantId"`
	Actor      *string   `db:"actor" json:"actor,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
