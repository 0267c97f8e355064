package repo

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/Ashrafnet/CommunityServer/internal/setting/entity"
)

// Repo is the repository implementation for settings, on Postgres or SQLite.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing *sqlx.DB connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the settings table and its indexes exist.
// Fields:
// - id varchar(32) PRIMARY KEY
// - parent_id, root_id for hierarchies (indexed)
// - record_meta JSON text
// - category varchar(32) (indexed)
// - metadata JSON text
func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			id varchar(32) PRIMARY KEY,
			parent_id varchar(32) NOT NULL DEFAULT '',
			root_id varchar(32) NOT NULL DEFAULT '',
			record_meta TEXT NOT NULL DEFAULT '{}',
			category varchar(32) NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settings_category ON settings (category)`,
		`CREATE INDEX IF NOT EXISTS idx_settings_parent_id ON settings (parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_settings_root_id ON settings (root_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type settingRow struct {
	ID         string `db:"id"`
	ParentID   string `db:"parent_id"`
	RootID     string `db:"root_id"`
	RecordMeta string `db:"record_meta"`
	Category   string `db:"category"`
	Metadata   string `db:"metadata"`
}

// GetByID returns a setting by id or sql.ErrNoRows.
func (r *Repo) GetByID(ctx context.Context, id string) (*entity.Setting, error) {
	q := r.db.Rebind(`SELECT id, parent_id, root_id, record_meta, category, metadata FROM settings WHERE id = ?`)
	var row settingRow
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &entity.Setting{
		ID:         row.ID,
		ParentID:   row.ParentID,
		RootID:     row.RootID,
		RecordMeta: json.RawMessage(row.RecordMeta),
		Category:   row.Category,
		Metadata:   json.RawMessage(row.Metadata),
	}, nil
}

// Upsert inserts the setting or replaces the stored row with the same id.
func (r *Repo) Upsert(ctx context.Context, s *entity.Setting) error {
	const q = `INSERT INTO settings (id, parent_id, root_id, record_meta, category, metadata)
		VALUES (:id, :parent_id, :root_id, :record_meta, :category, :metadata)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			root_id = excluded.root_id,
			record_meta = excluded.record_meta,
			category = excluded.category,
			metadata = excluded.metadata`
	row := settingRow{
		ID:         s.ID,
		ParentID:   s.ParentID,
		RootID:     s.RootID,
		RecordMeta: rawOrEmpty(s.RecordMeta),
		Category:   s.Category,
		Metadata:   rawOrEmpty(s.Metadata),
	}
	_, err := r.db.NamedExecContext(ctx, q, row)
	return err
}

func rawOrEmpty(m json.RawMessage) string {
	if len(m) == 0 {
		return "{}"
	}
	return string(m)
}
