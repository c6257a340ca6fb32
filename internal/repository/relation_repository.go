package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

const relationColumns = `id, tenant_id, document_id, consumer_kind, consumer_id, purpose, deleted_at, created_at, updated_at`

// RelationRepository owns relation rows. Removal is always a tombstone so
// audit queries can reconstruct past state.
type RelationRepository struct {
	db *sqlx.DB
}

// NewRelationRepository constructs the repository.
func NewRelationRepository(db *sqlx.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

// Ensure is an idempotent create-or-restore. A live relation is returned
// unchanged; a tombstoned one has its tombstone cleared; otherwise a new
// row is inserted.
func (r *RelationRepository) Ensure(ctx context.Context, tenantID, documentID string, consumer models.ConsumerRef, purpose models.RelationPurpose) (*models.Relation, error) {
	now := time.Now().UTC()

	query := fmt.Sprintf(`SELECT %s FROM relations
        WHERE tenant_id = $1 AND document_id = $2 AND consumer_kind = $3 AND consumer_id = $4 AND purpose = $5
        ORDER BY deleted_at ASC NULLS FIRST, created_at DESC LIMIT 1`, relationColumns)
	var rel models.Relation
	err := r.db.GetContext(ctx, &rel, query, tenantID, documentID, consumer.Kind, consumer.ID, purpose)
	switch {
	case err == nil:
		if !rel.Tombstoned() {
			return &rel, nil
		}
		const restore = `UPDATE relations SET deleted_at = NULL, updated_at = $3 WHERE tenant_id = $1 AND id = $2`
		if _, err := r.db.ExecContext(ctx, restore, tenantID, rel.ID, now); err != nil {
			return nil, fmt.Errorf("restore relation %s: %w", rel.ID, err)
		}
		rel.DeletedAt = nil
		rel.UpdatedAt = now
		return &rel, nil
	case errors.Is(err, sql.ErrNoRows):
		rel = models.Relation{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			DocumentID:   documentID,
			ConsumerKind: consumer.Kind,
			ConsumerID:   consumer.ID,
			Purpose:      purpose,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		const insert = `INSERT INTO relations (id, tenant_id, document_id, consumer_kind, consumer_id, purpose, deleted_at, created_at, updated_at)
            VALUES (:id, :tenant_id, :document_id, :consumer_kind, :consumer_id, :purpose, :deleted_at, :created_at, :updated_at)`
		if _, err := r.db.NamedExecContext(ctx, insert, &rel); err != nil {
			// A concurrent Ensure for the same key can win the insert; the
			// partial unique index reports that as a unique violation.
			if isUniqueViolation(err) {
				return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "relation already exists")
			}
			return nil, fmt.Errorf("create relation: %w", err)
		}
		return &rel, nil
	default:
		return nil, fmt.Errorf("find relation: %w", err)
	}
}

// Tombstone soft-deletes a relation. Tombstoning an already tombstoned row
// is a no-op, never a double write.
func (r *RelationRepository) Tombstone(ctx context.Context, tenantID, relationID string) error {
	const query = `UPDATE relations SET deleted_at = $3, updated_at = $3
        WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, tenantID, relationID, time.Now().UTC()); err != nil {
		return fmt.Errorf("tombstone relation %s: %w", relationID, err)
	}
	return nil
}

// ListActiveByDocument returns live relations for a document, optionally
// filtered by purpose.
func (r *RelationRepository) ListActiveByDocument(ctx context.Context, tenantID, documentID string, purpose *models.RelationPurpose) ([]models.Relation, error) {
	query := fmt.Sprintf(`SELECT %s FROM relations
        WHERE tenant_id = $1 AND document_id = $2 AND deleted_at IS NULL`, relationColumns)
	args := []interface{}{tenantID, documentID}
	if purpose != nil {
		query += fmt.Sprintf(" AND purpose = $%d", len(args)+1)
		args = append(args, *purpose)
	}
	query += " ORDER BY created_at ASC"
	var relations []models.Relation
	if err := r.db.SelectContext(ctx, &relations, query, args...); err != nil {
		return nil, fmt.Errorf("list relations by document: %w", err)
	}
	return relations, nil
}

// ListActiveByConsumer returns live relations held by a consumer.
func (r *RelationRepository) ListActiveByConsumer(ctx context.Context, tenantID string, consumer models.ConsumerRef, purpose *models.RelationPurpose) ([]models.Relation, error) {
	query := fmt.Sprintf(`SELECT %s FROM relations
        WHERE tenant_id = $1 AND consumer_kind = $2 AND consumer_id = $3 AND deleted_at IS NULL`, relationColumns)
	args := []interface{}{tenantID, consumer.Kind, consumer.ID}
	if purpose != nil {
		query += fmt.Sprintf(" AND purpose = $%d", len(args)+1)
		args = append(args, *purpose)
	}
	query += " ORDER BY created_at ASC"
	var relations []models.Relation
	if err := r.db.SelectContext(ctx, &relations, query, args...); err != nil {
		return nil, fmt.Errorf("list relations by consumer: %w", err)
	}
	return relations, nil
}

// FindUsageToReplace returns the live USAGE relations pointing a *different*
// document of the same owner/type at the given consumer. These are the rows
// the attachment workflow tombstones on replacement.
func (r *RelationRepository) FindUsageToReplace(ctx context.Context, tenantID string, consumer models.ConsumerRef, owner models.OwnerRef, docType models.DocumentType, excludeDocumentID string) ([]models.Relation, error) {
	query := fmt.Sprintf(`SELECT %s FROM relations r
        WHERE r.tenant_id = $1 AND r.consumer_kind = $2 AND r.consumer_id = $3
          AND r.purpose = $4 AND r.deleted_at IS NULL AND r.document_id <> $5
          AND EXISTS (
            SELECT 1 FROM documents d
            WHERE d.tenant_id = r.tenant_id AND d.id = r.document_id
              AND d.owner_kind = $6 AND d.owner_id = $7 AND d.doc_type = $8
          )`, prefixColumns("r", relationColumns))
	var relations []models.Relation
	err := r.db.SelectContext(ctx, &relations, query,
		tenantID, consumer.Kind, consumer.ID, models.PurposeUsage, excludeDocumentID,
		owner.Kind, owner.ID, docType)
	if err != nil {
		return nil, fmt.Errorf("find usage relations to replace: %w", err)
	}
	return relations, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// ListUsageByDocumentIDs batch-loads live USAGE relations keyed by document
// for timeline assembly.
func (r *RelationRepository) ListUsageByDocumentIDs(ctx context.Context, tenantID string, documentIDs []string) (map[string][]models.Relation, error) {
	result := make(map[string][]models.Relation, len(documentIDs))
	if len(documentIDs) == 0 {
		return result, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM relations
        WHERE tenant_id = ? AND purpose = ? AND deleted_at IS NULL AND document_id IN (?)
        ORDER BY created_at ASC`, relationColumns)
	query, args, err := sqlx.In(query, tenantID, models.PurposeUsage, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("build usage batch query: %w", err)
	}
	query = r.db.Rebind(query)
	var relations []models.Relation
	if err := r.db.SelectContext(ctx, &relations, query, args...); err != nil {
		return nil, fmt.Errorf("list usage relations: %w", err)
	}
	for _, rel := range relations {
		result[rel.DocumentID] = append(result[rel.DocumentID], rel)
	}
	return result, nil
}
