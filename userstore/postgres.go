package userstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrEthical07/sessionauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a credential store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it. Table
// identifiers are quoted with pgx.Identifier.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	table  string
}

// PostgresOption configures a [Postgres] store.
type PostgresOption func(*Postgres) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(p *Postgres) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("userstore: invalid schema identifier %q", schema)
		}
		p.schema = schema
		return nil
	}
}

// WithTable sets the users table name (default "users").
func WithTable(table string) PostgresOption {
	return func(p *Postgres) error {
		table = strings.TrimSpace(table)
		if !pgIdentRe.MatchString(table) {
			return fmt.Errorf("userstore: invalid table identifier %q", table)
		}
		p.table = table
		return nil
	}
}

// NewPostgres constructs a [Postgres] store over pool.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{
		pool:   pool,
		schema: "public",
		table:  "users",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.pool == nil {
		return nil, errors.New("userstore: nil pool")
	}
	return p, nil
}

func (p *Postgres) ident() string {
	return pgx.Identifier{p.schema, p.table}.Sanitize()
}

// EnsureSchema creates the users table and its unique username index when
// they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	users := p.ident()
	index := pgx.Identifier{"uq_" + p.table + "_username"}.Sanitize()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + users + ` (
		   id            TEXT PRIMARY KEY,
		   username      TEXT NOT NULL,
		   password_hash TEXT NOT NULL,
		   created_at    TIMESTAMPTZ NOT NULL
		 )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + index + ` ON ` + users + ` (username)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %v", sessionauth.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// GetByUsername returns the user stored under username.
func (p *Postgres) GetByUsername(ctx context.Context, username string) (sessionauth.User, error) {
	var u sessionauth.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM `+p.ident()+` WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessionauth.User{}, sessionauth.ErrUserNotFound
		}
		return sessionauth.User{}, fmt.Errorf("%w: %v", sessionauth.ErrStoreUnavailable, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// Create inserts user. A taken username yields an error wrapping
// sessionauth.ErrStoreConflict; a taken id yields [ErrDuplicateID].
func (p *Postgres) Create(ctx context.Context, user sessionauth.User) error {
	if user.ID == "" || user.Username == "" {
		return fmt.Errorf("%w: user id and username are required", sessionauth.ErrInvalidArgument)
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO `+p.ident()+` (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt.UTC(),
	)
	if err != nil {
		if pgErr, ok := pgUniqueViolation(err); ok {
			if pgErr.ConstraintName == p.table+"_pkey" {
				return fmt.Errorf("%w: %q", ErrDuplicateID, user.ID)
			}
			return fmt.Errorf("%w: username %q already exists", sessionauth.ErrStoreConflict, user.Username)
		}
		return fmt.Errorf("%w: %v", sessionauth.ErrStoreUnavailable, err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash of userID.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE `+p.ident()+` SET password_hash = $2 WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", sessionauth.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return sessionauth.ErrUserNotFound
	}
	return nil
}

// Ping checks pool connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", sessionauth.ErrStoreUnavailable, err)
	}
	return nil
}

func pgUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, false
	}
	return pgErr, pgErr.Code == "23505" // unique_violation
}
