package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"visitid/internal/identity/models"
	"visitid/pkg/platform/sentinel"
)

// pqUniqueViolation is the PostgreSQL error code for unique_violation.
const pqUniqueViolation = "23505"

// constraintAttrs maps schema constraint names back to the attribute a
// conflict should be reported against. The per-column unique indexes are
// the last-line defense: two writers can pass CheckUnique concurrently for
// the same new value, and only the constraint decides the loser.
var constraintAttrs = map[string]UniqueAttr{
	"identities_visitor_token_key": AttrVisitorToken,
	"identities_user_handle_key":   AttrUserHandle,
	"identities_phone_key":         AttrPhone,
}

var columnAttrs = map[UniqueAttr]string{
	AttrVisitorToken: "visitor_token",
	AttrUserHandle:   "user_handle",
	AttrPhone:        "phone",
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists identity records in PostgreSQL.
type PostgresStore struct {
	q queryer
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

// NewPostgresTx constructs a store view scoped to an open transaction. Used
// by the transactional runner so checks and writes share one atomic unit.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

const identityColumns = `id, visitor_token, user_handle, display_name, phone, credential_secret, role, status, created_at, updated_at, last_seen_at, last_ip`

func (s *PostgresStore) FindByVisitorToken(ctx context.Context, token string) (*models.Identity, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE visitor_token = $1`, token)
	rec, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find by visitor token: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find by visitor token: %w", wrapUnavailable(err))
	}
	return rec, nil
}

func (s *PostgresStore) CheckUnique(ctx context.Context, attr UniqueAttr, value string, excludeID int64) error {
	if value == "" {
		return nil
	}
	column, ok := columnAttrs[attr]
	if !ok {
		return fmt.Errorf("unknown unique attribute %q", attr)
	}
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identities WHERE `+column+` = $1 AND id != $2`,
		value, excludeID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check %s uniqueness: %w", attr, wrapUnavailable(err))
	}
	if count > 0 {
		return &ConflictError{Attr: attr}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, identity *models.Identity) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO identities (visitor_token, user_handle, display_name, phone, credential_secret, role, status, created_at, updated_at, last_seen_at, last_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		identity.VisitorToken,
		nullString(identity.UserHandle),
		identity.DisplayName,
		nullString(identity.Phone),
		identity.CredentialSecret,
		string(identity.Role),
		identity.Status,
		identity.CreatedAt,
		identity.UpdatedAt,
		identity.LastSeenAt,
		identity.LastIP,
	).Scan(&identity.ID)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert identity: %w", wrapUnavailable(err))
	}
	return nil
}

func (s *PostgresStore) UpdateByID(ctx context.Context, identity *models.Identity) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE identities
		SET visitor_token = $2, user_handle = $3, display_name = $4, phone = $5,
		    credential_secret = $6, role = $7, status = $8, updated_at = $9,
		    last_seen_at = $10, last_ip = $11
		WHERE id = $1`,
		identity.ID,
		identity.VisitorToken,
		nullString(identity.UserHandle),
		identity.DisplayName,
		nullString(identity.Phone),
		identity.CredentialSecret,
		string(identity.Role),
		identity.Status,
		identity.UpdatedAt,
		identity.LastSeenAt,
		identity.LastIP,
	)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update identity: %w", wrapUnavailable(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity: %w", wrapUnavailable(err))
	}
	if affected == 0 {
		return fmt.Errorf("update identity %d: %w", identity.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", wrapUnavailable(err))
	}
	return count, nil
}

// asConflict translates an engine unique violation into a ConflictError,
// using the constraint name to recover the offending attribute.
func asConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return nil
	}
	if attr, ok := constraintAttrs[pqErr.Constraint]; ok {
		return &ConflictError{Attr: attr}
	}
	return &ConflictError{Attr: AttrVisitorToken}
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
}

func scanIdentity(row *sql.Row) (*models.Identity, error) {
	var (
		rec    models.Identity
		handle sql.NullString
		phone  sql.NullString
		role   string
	)
	err := row.Scan(&rec.ID, &rec.VisitorToken, &handle, &rec.DisplayName, &phone,
		&rec.CredentialSecret, &role, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.LastSeenAt, &rec.LastIP)
	if err != nil {
		return nil, err
	}
	rec.UserHandle = handle.String
	rec.Phone = phone.String
	rec.Role = models.Role(role)
	return &rec, nil
}

// nullString maps "" to NULL so the partial unique indexes on nullable
// columns never collide on empty values.
func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
