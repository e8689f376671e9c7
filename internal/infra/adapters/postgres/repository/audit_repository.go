package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/VanishRoom/internal/domain/models"
)

// AuditRepository - журнал действий администраторов, только добавление
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	ListByTarget(ctx context.Context, target string, limit int) ([]*models.AuditRecord, error)
}

type auditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, record *models.AuditRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		"INSERT INTO audit_log (id, admin_id, action, target, success, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		record.ID,
		record.AdminID,
		record.Action,
		record.Target,
		record.Success,
		metadata,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	return nil
}

type auditRow struct {
	models.AuditRecord
	RawMetadata []byte `db:"metadata"`
}

func (r *auditRepo) ListByTarget(ctx context.Context, target string, limit int) ([]*models.AuditRecord, error) {
	var rows []auditRow

	query := `
		SELECT id, admin_id, action, target, success, metadata, created_at
		FROM audit_log
		WHERE target = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	if err := r.db.SelectContext(ctx, &rows, query, target, limit); err != nil {
		return nil, fmt.Errorf("select audit records: %w", err)
	}

	records := make([]*models.AuditRecord, 0, len(rows))
	for i := range rows {
		rec := rows[i].AuditRecord
		if len(rows[i].RawMetadata) > 0 {
			if err := json.Unmarshal(rows[i].RawMetadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		records = append(records, &rec)
	}

	return records, nil
}
