package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

const documentColumns = `id, tenant_id, owner_kind, owner_id, doc_type, status, is_active,
        valid_from, valid_to, superseded_by_id, superseded_at, version_number,
        rejection_reason, metadata, checksum, blob_locator, content_type, size_bytes,
        created_at, updated_at`

// ActivationOutcome describes what an activation transaction did.
type ActivationOutcome struct {
	Document      models.Document
	Superseded    *models.Document
	AlreadyActive bool
}

// DocumentRepository owns document rows. No other component writes
// is_active or the supersession pointers.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create persists a new document row. Rows are born inactive; Activate is
// the only writer that sets is_active, so the partial unique index on the
// active flag holds at every instant.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.ValidFrom.IsZero() {
		doc.ValidFrom = now
	}
	doc.UpdatedAt = doc.CreatedAt
	if doc.Status == "" {
		doc.Status = models.DocumentStatusPending
	}
	doc.IsActive = false
	if len(doc.Metadata) == 0 {
		doc.Metadata = []byte("{}")
	}
	const query = `INSERT INTO documents (id, tenant_id, owner_kind, owner_id, doc_type, status, is_active,
        valid_from, valid_to, superseded_by_id, superseded_at, version_number,
        rejection_reason, metadata, checksum, blob_locator, content_type, size_bytes, created_at, updated_at)
        VALUES (:id, :tenant_id, :owner_kind, :owner_id, :doc_type, :status, :is_active,
        :valid_from, :valid_to, :superseded_by_id, :superseded_at, :version_number,
        :rejection_reason, :metadata, :checksum, :blob_locator, :content_type, :size_bytes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID returns a document scoped to a tenant.
func (r *DocumentRepository) FindByID(ctx context.Context, tenantID, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE tenant_id = $1 AND id = $2`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, tenantID, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByOwnerAndType returns the lineage for an owner/type, newest first.
func (r *DocumentRepository) ListByOwnerAndType(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, includeInactive bool) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents
        WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND doc_type = $4`, documentColumns)
	if !includeInactive {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY created_at DESC"
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, tenantID, owner.Kind, owner.ID, docType); err != nil {
		return nil, fmt.Errorf("list documents by owner and type: %w", err)
	}
	return docs, nil
}

// ListActive returns active documents for an owner, optionally filtered by type.
func (r *DocumentRepository) ListActive(ctx context.Context, tenantID string, owner models.OwnerRef, docType *models.DocumentType) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents
        WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND is_active = TRUE`, documentColumns)
	args := []interface{}{tenantID, owner.Kind, owner.ID}
	if docType != nil {
		query += fmt.Sprintf(" AND doc_type = $%d", len(args)+1)
		args = append(args, *docType)
	}
	query += " ORDER BY created_at DESC"
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list active documents: %w", err)
	}
	return docs, nil
}

// FindValidAt returns the document whose [valid_from, valid_to) interval
// contains ts. At most one row matches because supersession keeps the
// lineage intervals non-overlapping.
func (r *DocumentRepository) FindValidAt(ctx context.Context, tenantID string, owner models.OwnerRef, docType models.DocumentType, ts time.Time) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents
        WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND doc_type = $4
          AND version_number > 0
          AND valid_from <= $5 AND (valid_to IS NULL OR valid_to > $5)
        ORDER BY valid_from DESC LIMIT 1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, tenantID, owner.Kind, owner.ID, docType, ts); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindSupersededBy returns the predecessor of a document: the row whose
// superseded_by_id points at it. Used to walk a lineage backward.
func (r *DocumentRepository) FindSupersededBy(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE tenant_id = $1 AND superseded_by_id = $2`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, tenantID, documentID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateStatus writes a review outcome. Transition legality is enforced by
// the service; this only persists.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, tenantID, id string, status models.DocumentStatus, reason *string) error {
	const query = `UPDATE documents SET status = $3, rejection_reason = $4, updated_at = $5
        WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, status, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Activate performs the supersession transition in one transaction. An
// advisory lock scoped to (tenant, owner, type) serializes concurrent
// activations for the same lineage; two racing uploads therefore commit in
// a well-defined order instead of both believing they are the new active
// version.
func (r *DocumentRepository) Activate(ctx context.Context, tenantID, documentID string, now time.Time) (*ActivationOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin activation: %w", err)
	}
	outcome, err := r.activateInTx(ctx, tx, tenantID, documentID, now)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}
	return outcome, nil
}

func (r *DocumentRepository) activateInTx(ctx context.Context, tx *sqlx.Tx, tenantID, documentID string, now time.Time) (*ActivationOutcome, error) {
	selectDoc := fmt.Sprintf(`SELECT %s FROM documents WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, documentColumns)
	var doc models.Document
	if err := tx.GetContext(ctx, &doc, selectDoc, tenantID, documentID); err != nil {
		return nil, err
	}

	// Lineage lock. Must be held before reading the current active row so
	// two inserts that both see "no active document" cannot interleave.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lineageLockKey(doc.TenantID, doc.OwnerKind, doc.OwnerID, doc.Type)); err != nil {
		return nil, fmt.Errorf("acquire lineage lock: %w", err)
	}

	if doc.Superseded() {
		return nil, appErrors.Clone(appErrors.ErrDocumentSuperseded,
			fmt.Sprintf("document %s was superseded by %s", doc.ID, *doc.SupersededByID))
	}
	if doc.IsActive {
		return &ActivationOutcome{Document: doc, AlreadyActive: true}, nil
	}

	selectPrior := fmt.Sprintf(`SELECT %s FROM documents
        WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND doc_type = $4
          AND is_active = TRUE AND id <> $5 FOR UPDATE`, documentColumns)
	var prior models.Document
	havePrior := true
	if err := tx.GetContext(ctx, &prior, selectPrior, doc.TenantID, doc.OwnerKind, doc.OwnerID, doc.Type, doc.ID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find active document: %w", err)
		}
		havePrior = false
	}

	var maxVersion int
	const versionQuery = `SELECT COALESCE(MAX(version_number), 0) FROM documents
        WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3 AND doc_type = $4`
	if err := tx.GetContext(ctx, &maxVersion, versionQuery, doc.TenantID, doc.OwnerKind, doc.OwnerID, doc.Type); err != nil {
		return nil, fmt.Errorf("resolve lineage version: %w", err)
	}

	// Commit order decides where lineage intervals split, not row creation
	// order. A raced upload activated second carries an older creation-time
	// valid_from; closing the winner's interval there would invert it, so
	// the activation opens at the latest of the row's valid_from, the prior
	// interval's open and the activation timestamp.
	validFrom := doc.ValidFrom
	if validFrom.IsZero() || now.After(validFrom) {
		validFrom = now
	}
	if havePrior && prior.ValidFrom.After(validFrom) {
		validFrom = prior.ValidFrom
	}

	outcome := &ActivationOutcome{}
	if havePrior {
		// The old interval closes exactly where the new one opens, keeping
		// the lineage contiguous and non-overlapping.
		const supersede = `UPDATE documents SET is_active = FALSE, superseded_by_id = $3,
            superseded_at = $4, valid_to = $5, updated_at = $4
            WHERE tenant_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, supersede, prior.TenantID, prior.ID, doc.ID, now, validFrom); err != nil {
			return nil, fmt.Errorf("supersede document %s: %w", prior.ID, err)
		}
		prior.IsActive = false
		prior.SupersededByID = &doc.ID
		prior.SupersededAt = &now
		prior.ValidTo = &validFrom
		prior.UpdatedAt = now
		outcome.Superseded = &prior
	}

	const promote = `UPDATE documents SET is_active = TRUE, valid_from = $3, version_number = $4, updated_at = $5
        WHERE tenant_id = $1 AND id = $2`
	if _, err := tx.ExecContext(ctx, promote, doc.TenantID, doc.ID, validFrom, maxVersion+1, now); err != nil {
		return nil, fmt.Errorf("activate document %s: %w", doc.ID, err)
	}
	doc.IsActive = true
	doc.ValidFrom = validFrom
	doc.VersionNumber = maxVersion + 1
	doc.UpdatedAt = now
	outcome.Document = doc
	return outcome, nil
}

// ExpireApproved flips approved documents whose validity window opened
// before the cutoff to EXPIRED, returning the affected rows.
func (r *DocumentRepository) ExpireApproved(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	query := fmt.Sprintf(`UPDATE documents SET status = $1, updated_at = $2
        WHERE status = $3 AND valid_from < $4
        RETURNING %s`, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, models.DocumentStatusExpired, time.Now().UTC(), models.DocumentStatusApproved, cutoff); err != nil {
		return nil, fmt.Errorf("expire approved documents: %w", err)
	}
	return docs, nil
}

// IsSerializationFailure reports whether the error is Postgres telling us a
// concurrent writer won; such activations are retried with backoff.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}

func lineageLockKey(tenantID string, ownerKind models.OwnerKind, ownerID string, docType models.DocumentType) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(ownerKind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(ownerID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(docType))
	return int64(h.Sum64())
}
