package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ashrafnet/CommunityServer/internal/apperr"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// CredentialRepo keeps one password hash per account. The table is created
// by AccountRepo.EnsureTable.
type CredentialRepo struct {
	db     *sqlx.DB
	hasher PasswordHasher
}

func NewCredentialRepo(db *sqlx.DB, hasher PasswordHasher) *CredentialRepo {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &CredentialRepo{db: db, hasher: hasher}
}

// SetPassword hashes plaintext and replaces the account's stored hash.
func (r *CredentialRepo) SetPassword(ctx context.Context, id, plaintext string) error {
	hash, algo, err := r.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	q := r.db.Rebind(`INSERT INTO credentials (account_id, password_hash, password_algo, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id) DO UPDATE SET
			password_hash = excluded.password_hash,
			password_algo = excluded.password_algo,
			updated_at = CURRENT_TIMESTAMP`)
	if _, err := r.db.ExecContext(ctx, q, id, hash, algo); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func (r *CredentialRepo) VerifyPassword(ctx context.Context, id, plaintext string) (bool, error) {
	q := r.db.Rebind(`SELECT password_hash FROM credentials WHERE account_id = ?`)
	var hash string
	if err := r.db.GetContext(ctx, &hash, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, apperr.ErrAccountNotFound
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return r.hasher.Verify(hash, plaintext), nil
}
