package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/Ashrafnet/CommunityServer/internal/account/entity"
	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

// AccountRepo stores the accounts of one tenant. Queries are written with
// '?' placeholders and rebound for the connected driver, so the same repo
// runs on Postgres and SQLite.
type AccountRepo struct {
	db       *sqlx.DB
	tenantID int64
}

func NewAccountRepo(db *sqlx.DB, tenantID int64) *AccountRepo {
	return &AccountRepo{db: db, tenantID: tenantID}
}

// schema creates the account tables. Statements run one by one since
// neither driver accepts multi-statement Exec with arguments.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		username TEXT NOT NULL CHECK (username <> ''),
		email TEXT NOT NULL DEFAULT '',
		sid TEXT,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		contacts TEXT NOT NULL DEFAULT '[]',
		activation_status INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 1,
		is_owner BOOLEAN NOT NULL DEFAULT FALSE,
		is_visitor BOOLEAN NOT NULL DEFAULT FALSE,
		work_from TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_username ON accounts (tenant_id, username)`,
	// Terminated accounts release their email.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts (tenant_id, lower(email))
		WHERE email <> '' AND (status & 2) = 0`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_sid ON accounts (tenant_id, sid) WHERE sid IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_owner ON accounts (tenant_id) WHERE is_owner`,
	`CREATE TABLE IF NOT EXISTS account_groups (
		account_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		PRIMARY KEY (account_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		account_id TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		password_algo TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// EnsureTable creates the accounts, account_groups and credentials tables
// and their indexes if missing (idempotent).
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure account schema: %w", err)
		}
	}
	return nil
}

const accountColumns = `id, username, email, sid, first_name, last_name, title, location,
	contacts, activation_status, status, is_owner, is_visitor, work_from`

type accountRow struct {
	ID               string         `db:"id"`
	TenantID         int64          `db:"tenant_id"`
	Username         string         `db:"username"`
	Email            string         `db:"email"`
	Sid              sql.NullString `db:"sid"`
	FirstName        string         `db:"first_name"`
	LastName         string         `db:"last_name"`
	Title            string         `db:"title"`
	Location         string         `db:"location"`
	Contacts         string         `db:"contacts"`
	ActivationStatus int            `db:"activation_status"`
	Status           int            `db:"status"`
	IsOwner          bool           `db:"is_owner"`
	IsVisitor        bool           `db:"is_visitor"`
	WorkFrom         sql.NullTime   `db:"work_from"`
}

func toRow(tenantID int64, a entity.Account) (accountRow, error) {
	contacts := a.Contacts
	if contacts == nil {
		contacts = []entity.Contact{}
	}
	raw, err := json.Marshal(contacts)
	if err != nil {
		return accountRow{}, fmt.Errorf("encode contacts: %w", err)
	}
	row := accountRow{
		ID:               a.ID,
		TenantID:         tenantID,
		Username:         a.Username,
		Email:            a.Email,
		Sid:              sql.NullString{String: a.Sid, Valid: a.Sid != ""},
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Title:            a.Title,
		Location:         a.Location,
		Contacts:         string(raw),
		ActivationStatus: int(a.ActivationStatus),
		Status:           int(a.Status),
		IsOwner:          a.IsOwner,
		IsVisitor:        a.IsVisitor,
	}
	if a.WorkFrom != nil {
		row.WorkFrom = sql.NullTime{Time: a.WorkFrom.UTC(), Valid: true}
	}
	return row, nil
}

func (row accountRow) toEntity() (entity.Account, error) {
	a := entity.Account{
		ID:               row.ID,
		Username:         row.Username,
		Email:            row.Email,
		Sid:              row.Sid.String,
		FirstName:        row.FirstName,
		LastName:         row.LastName,
		Title:            row.Title,
		Location:         row.Location,
		ActivationStatus: entity.ActivationStatus(row.ActivationStatus),
		Status:           entity.EmployeeStatus(row.Status),
		IsOwner:          row.IsOwner,
		IsVisitor:        row.IsVisitor,
	}
	if row.Contacts != "" {
		if err := json.Unmarshal([]byte(row.Contacts), &a.Contacts); err != nil {
			return entity.Account{}, fmt.Errorf("decode contacts of %s: %w", row.ID, err)
		}
		if len(a.Contacts) == 0 {
			a.Contacts = nil
		}
	}
	if row.WorkFrom.Valid {
		t := row.WorkFrom.Time
		a.WorkFrom = &t
	}
	return a, nil
}

func (r *AccountRepo) getOne(ctx context.Context, where string, args ...any) (entity.Account, error) {
	q := r.db.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id = ? AND ` + where)
	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, append([]any{r.tenantID}, args...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Account{}, apperr.ErrAccountNotFound
		}
		return entity.Account{}, fmt.Errorf("db error: %w", err)
	}
	return row.toEntity()
}

// FindByUsername returns the account with the exact username.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (entity.Account, error) {
	return r.getOne(ctx, `username = ?`, username)
}

// FindByEmail matches case-insensitively. When a terminated account and a
// live one share the address, the live one wins.
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (entity.Account, error) {
	if email == "" {
		return entity.Account{}, apperr.ErrAccountNotFound
	}
	return r.getOne(ctx, `email <> '' AND lower(email) = lower(?) ORDER BY (status & 2), id LIMIT 1`, email)
}

// FindBySid returns the account linked to the directory id.
func (r *AccountRepo) FindBySid(ctx context.Context, sid string) (entity.Account, error) {
	if sid == "" {
		return entity.Account{}, apperr.ErrAccountNotFound
	}
	return r.getOne(ctx, `sid = ?`, sid)
}

func (r *AccountRepo) Exists(ctx context.Context, id string) (bool, error) {
	q := r.db.Rebind(`SELECT COUNT(1) FROM accounts WHERE tenant_id = ? AND id = ?`)
	var n int
	if err := r.db.GetContext(ctx, &n, q, r.tenantID, id); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// CountActive returns the number of active, non-visitor accounts.
func (r *AccountRepo) CountActive(ctx context.Context) (int, error) {
	q := r.db.Rebind(`SELECT COUNT(1) FROM accounts WHERE tenant_id = ? AND (status & 1) = 1 AND NOT is_visitor`)
	var n int
	if err := r.db.GetContext(ctx, &n, q, r.tenantID); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

const upsertAccount = `INSERT INTO accounts (id, tenant_id, username, email, sid, first_name, last_name,
		title, location, contacts, activation_status, status, is_owner, is_visitor, work_from)
	VALUES (:id, :tenant_id, :username, :email, :sid, :first_name, :last_name,
		:title, :location, :contacts, :activation_status, :status, :is_owner, :is_visitor, :work_from)
	ON CONFLICT (id) DO UPDATE SET
		username = excluded.username,
		email = excluded.email,
		sid = excluded.sid,
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		title = excluded.title,
		location = excluded.location,
		contacts = excluded.contacts,
		activation_status = excluded.activation_status,
		status = excluded.status,
		is_owner = excluded.is_owner,
		is_visitor = excluded.is_visitor,
		work_from = excluded.work_from,
		updated_at = CURRENT_TIMESTAMP
	WHERE accounts.tenant_id = excluded.tenant_id`

// Save inserts or updates the account by id. Unique index violations are
// reported as apperr.ErrUsernameCollision or apperr.ErrDuplicateEmail.
func (r *AccountRepo) Save(ctx context.Context, a entity.Account) (entity.Account, error) {
	if a.ID == "" {
		return entity.Account{}, errors.New("save account: id is required")
	}
	row, err := toRow(r.tenantID, a)
	if err != nil {
		return entity.Account{}, err
	}
	res, err := r.db.NamedExecContext(ctx, upsertAccount, row)
	if err != nil {
		return entity.Account{}, classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.Account{}, fmt.Errorf("account %s belongs to another tenant", a.ID)
	}
	return a, nil
}

// Delete removes the account with its group memberships and credentials.
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		q    string
		args []any
	}{
		{`DELETE FROM account_groups WHERE account_id IN (SELECT id FROM accounts WHERE tenant_id = ? AND id = ?)`, []any{r.tenantID, id}},
		{`DELETE FROM credentials WHERE account_id IN (SELECT id FROM accounts WHERE tenant_id = ? AND id = ?)`, []any{r.tenantID, id}},
		{`DELETE FROM accounts WHERE tenant_id = ? AND id = ?`, []any{r.tenantID, id}},
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, tx.Rebind(s.q), s.args...); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return tx.Commit()
}

// AddToGroup records group membership; adding twice is a no-op.
func (r *AccountRepo) AddToGroup(ctx context.Context, id string, groupID uuid.UUID) error {
	q := r.db.Rebind(`INSERT INTO account_groups (account_id, group_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, q, id, groupID.String()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Groups lists the group ids of an account.
func (r *AccountRepo) Groups(ctx context.Context, id string) ([]uuid.UUID, error) {
	q := r.db.Rebind(`SELECT group_id FROM account_groups WHERE account_id = ? ORDER BY group_id`)
	var raw []string
	if err := r.db.SelectContext(ctx, &raw, q, id); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		g, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("group id %q: %w", s, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// classify maps unique index violations from either driver to error kinds.
// The index name (Postgres) or the failing column list (SQLite) tells which
// constraint fired.
func classify(err error) error {
	var detail string
	var pqErr *pq.Error
	var liteErr *sqlite.Error
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == "23505":
		detail = pqErr.Constraint
	case errors.As(err, &liteErr) && strings.Contains(liteErr.Error(), "UNIQUE constraint failed"):
		detail = liteErr.Error()
	default:
		return fmt.Errorf("db error: %w", err)
	}
	switch {
	case strings.Contains(detail, "username"):
		return apperr.Wrap(apperr.CodeUsernameCollision, "username already taken", err)
	case strings.Contains(detail, "email"):
		return apperr.Wrap(apperr.CodeDuplicateEmail, "email already exists", err)
	}
	return fmt.Errorf("unique violation: %w", err)
}
