// Package identities provides a PostgreSQL-backed repository for account
// rows. Optional columns are nullable in the table and mapped to empty
// strings on the way out.
package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/dbx"
	"github.com/osokin-dev/gatehouse/internal/server/models"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// identityRow mirrors the table's nullable columns.
type identityRow struct {
	id           int64
	email        string
	passwordHash sql.NullString
	providerID   sql.NullString
	username     sql.NullString
	avatarKey    sql.NullString
	twofaSecret  sql.NullString
	twofaEnabled bool
	createdAt    sql.NullTime
}

func (r identityRow) toModel() *models.Identity {
	return &models.Identity{
		ID:                 r.id,
		Email:              r.email,
		PasswordHash:       r.passwordHash.String,
		ExternalProviderID: r.providerID.String,
		Username:           r.username.String,
		AvatarKey:          r.avatarKey.String,
		TwoFASecret:        r.twofaSecret.String,
		TwoFAEnabled:       r.twofaEnabled,
		CreatedAt:          r.createdAt.Time,
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation matches the Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const selectColumns = `id, email, password_hash, external_provider_id, username, avatar_key, twofa_secret, twofa_enabled, created_at`

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Identity, error) {
	var rec identityRow
	err := row.Scan(&rec.id, &rec.email, &rec.passwordHash, &rec.providerID,
		&rec.username, &rec.avatarKey, &rec.twofaSecret, &rec.twofaEnabled, &rec.createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "identity not found")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec.toModel(), nil
}

// Create inserts a new identity. A duplicate email or provider id yields a
// Conflict error.
func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query := `
		INSERT INTO identities (email, password_hash, external_provider_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		identity.Email, nullable(identity.PasswordHash), nullable(identity.ExternalProviderID)).
		Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.KindConflict, "email already registered")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByProviderID(ctx context.Context, providerID string) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE external_provider_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, providerID))
}

// AttachProvider links an OAuth provider id to an existing row, merging the
// two credential methods onto one identity.
func (r *PostgresRepository) AttachProvider(ctx context.Context, id int64, providerID string) error {
	query := `
		UPDATE identities SET external_provider_id = $2
		WHERE id = $1 AND external_provider_id IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, id, providerID); err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindConflict, "provider already linked")
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetProfile stores username (and avatar key when present). A duplicate
// username yields a Conflict error.
func (r *PostgresRepository) SetProfile(ctx context.Context, id int64, username, avatarKey string) error {
	query := `
		UPDATE identities SET username = $2, avatar_key = COALESCE($3, avatar_key)
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, username, nullable(avatarKey)); err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindConflict, "username already taken")
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetTwoFA persists (or clears) the TOTP secret and the enabled flag.
func (r *PostgresRepository) SetTwoFA(ctx context.Context, id int64, secret string, enabled bool) error {
	query := `
		UPDATE identities SET twofa_secret = $2, twofa_enabled = $3
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, nullable(secret), enabled); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
