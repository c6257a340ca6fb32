package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentType enumerates the closed set of document categories an
// applicant can submit.
type DocumentType string

const (
	DocumentTypeIdentityFront  DocumentType = "IDENTITY_FRONT"
	DocumentTypeIdentityBack   DocumentType = "IDENTITY_BACK"
	DocumentTypeProofOfAddress DocumentType = "PROOF_OF_ADDRESS"
	DocumentTypePayslip        DocumentType = "PAYSLIP"
	DocumentTypeBankStatement  DocumentType = "BANK_STATEMENT"
	DocumentTypeTaxID          DocumentType = "TAX_ID"
	DocumentTypeSelfie         DocumentType = "SELFIE"
)

// ValidDocumentType reports whether t belongs to the closed set.
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypeIdentityFront, DocumentTypeIdentityBack, DocumentTypeProofOfAddress,
		DocumentTypePayslip, DocumentTypeBankStatement, DocumentTypeTaxID, DocumentTypeSelfie:
		return true
	}
	return false
}

// DocumentStatus captures the review state of an uploaded document. It is
// orthogonal to activation: a rejected document can still be the active
// version until something replaces it.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "PENDING"
	DocumentStatusApproved DocumentStatus = "APPROVED"
	DocumentStatusRejected DocumentStatus = "REJECTED"
	DocumentStatusExpired  DocumentStatus = "EXPIRED"
)

// OwnerKind identifies what kind of party a document belongs to.
type OwnerKind string

const (
	OwnerKindPerson  OwnerKind = "PERSON"
	OwnerKindCompany OwnerKind = "COMPANY"
)

// OwnerRef identifies the party a document belongs to. The engine never
// dereferences the ID into a business object.
type OwnerRef struct {
	Kind OwnerKind `json:"kind" validate:"required,oneof=PERSON COMPANY"`
	ID   string    `json:"id" validate:"required"`
}

// Validate checks the reference is well formed.
func (o OwnerRef) Validate() error {
	switch o.Kind {
	case OwnerKindPerson, OwnerKindCompany:
	default:
		return fmt.Errorf("invalid owner kind %q", o.Kind)
	}
	if o.ID == "" {
		return fmt.Errorf("owner id is required")
	}
	return nil
}

// Document is the canonical record for one uploaded artifact. Rows are
// never physically deleted; supersession is the only removal.
type Document struct {
	ID              string          `db:"id" json:"id"`
	TenantID        string          `db:"tenant_id" json:"tenantId"`
	OwnerKind       OwnerKind       `db:"owner_kind" json:"ownerKind"`
	OwnerID         string          `db:"owner_id" json:"ownerId"`
	Type            DocumentType    `db:"doc_type" json:"type"`
	Status          DocumentStatus  `db:"status" json:"status"`
	IsActive        bool            `db:"is_active" json:"isActive"`
	ValidFrom       time.Time       `db:"valid_from" json:"validFrom"`
	ValidTo         *time.Time      `db:"valid_to" json:"validTo,omitempty"`
	SupersededByID  *string         `db:"superseded_by_id" json:"supersededById,omitempty"`
	SupersededAt    *time.Time      `db:"superseded_at" json:"supersededAt,omitempty"`
	VersionNumber   int             `db:"version_number" json:"versionNumber"`
	RejectionReason *string         `db:"rejection_reason" json:"rejectionReason,omitempty"`
	Metadata        json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Checksum        string          `db:"checksum" json:"checksum"`
	BlobLocator     string          `db:"blob_locator" json:"-"`
	ContentType     string          `db:"content_type" json:"contentType"`
	SizeBytes       int64           `db:"size_bytes" json:"sizeBytes"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// Owner returns the owner reference pair.
func (d *Document) Owner() OwnerRef {
	return OwnerRef{Kind: d.OwnerKind, ID: d.OwnerID}
}

// Superseded reports whether this row has been replaced. A superseded row
// never returns to active.
func (d *Document) Superseded() bool {
	return d.SupersededByID != nil
}

// statusTransitions holds the legal review transitions. Everything else is
// an InvalidTransition.
var statusTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusPending:  {DocumentStatusApproved, DocumentStatusRejected},
	DocumentStatusApproved: {DocumentStatusExpired},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to DocumentStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
