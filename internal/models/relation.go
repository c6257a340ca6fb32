package models

import (
	"fmt"
	"time"
)

// ConsumerKind identifies what kind of entity uses a document.
type ConsumerKind string

const (
	ConsumerKindPerson          ConsumerKind = "PERSON"
	ConsumerKindCompany         ConsumerKind = "COMPANY"
	ConsumerKindLoanApplication ConsumerKind = "LOAN_APPLICATION"
	ConsumerKindVerification    ConsumerKind = "VERIFICATION_CHECK"
)

// ConsumerRef identifies a document consumer as an opaque (kind, id) pair.
type ConsumerRef struct {
	Kind ConsumerKind `json:"kind"`
	ID   string       `json:"id"`
}

// Validate checks the reference is well formed.
func (c ConsumerRef) Validate() error {
	switch c.Kind {
	case ConsumerKindPerson, ConsumerKindCompany, ConsumerKindLoanApplication, ConsumerKindVerification:
	default:
		return fmt.Errorf("invalid consumer kind %q", c.Kind)
	}
	if c.ID == "" {
		return fmt.Errorf("consumer id is required")
	}
	return nil
}

// ConsumerFromOwner lifts an owner into the consumer space for ownership
// relations.
func ConsumerFromOwner(o OwnerRef) ConsumerRef {
	return ConsumerRef{Kind: ConsumerKind(o.Kind), ID: o.ID}
}

// RelationPurpose enumerates why a relation exists.
type RelationPurpose string

const (
	PurposeOwnership    RelationPurpose = "OWNERSHIP"
	PurposeUsage        RelationPurpose = "USAGE"
	PurposeReference    RelationPurpose = "REFERENCE"
	PurposeVerification RelationPurpose = "VERIFICATION"
)

// ValidRelationPurpose reports whether p belongs to the closed set.
func ValidRelationPurpose(p RelationPurpose) bool {
	switch p {
	case PurposeOwnership, PurposeUsage, PurposeReference, PurposeVerification:
		return true
	}
	return false
}

// Relation associates a document with a consumer for a purpose. Relations
// are never hard-deleted: removal is a tombstone timestamp so audit queries
// can reconstruct what was true at any past instant. At most one
// non-deleted relation exists per (document, consumer, purpose).
type Relation struct {
	ID           string          `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenantId"`
	DocumentID   string          `db:"document_id" json:"documentId"`
	ConsumerKind ConsumerKind    `db:"consumer_kind" json:"consumerKind"`
	ConsumerID   string          `db:"consumer_id" json:"consumerId"`
	Purpose      RelationPurpose `db:"purpose" json:"purpose"`
	DeletedAt    *time.Time      `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// Consumer returns the consumer reference pair.
func (r *Relation) Consumer() ConsumerRef {
	return ConsumerRef{Kind: r.ConsumerKind, ID: r.ConsumerID}
}

// Tombstoned reports whether the relation has been soft-deleted.
func (r *Relation) Tombstoned() bool {
	return r.DeletedAt != nil
}
