package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"account_service/internal/config"
	"account_service/internal/models"
	"account_service/internal/storage"
	"account_service/internal/storage/postgres/migrations"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := runMigrations(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// runMigrations applies the embedded goose migrations through a
// short-lived database/sql connection; the pgx pool stays query-only.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (id, name, username, email, password_hash, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Username,
		user.Email,
		user.PassHash,
		user.Verified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

// UserByUsernameOrEmail returns the first user matching either
// identifier. Pass an empty string for the identifier not in use.
func (r *PostgresRepo) UserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	const op = "storage.postgres.UserByUsernameOrEmail"

	query := `
		SELECT id, name, username, email, password_hash, verified, created_at, updated_at
		FROM users
		WHERE username = $1 OR email = $2
		LIMIT 1;
	`

	return r.scanUser(ctx, op, query, username, email)
}

func (r *PostgresRepo) UserByID(ctx context.Context, id string) (models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `
		SELECT id, name, username, email, password_hash, verified, created_at, updated_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(ctx, op, query, id)
}

func (r *PostgresRepo) SetVerified(ctx context.Context, userID string) error {
	const op = "storage.postgres.SetVerified"

	query := `UPDATE users SET verified = TRUE, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, userID, passHash string) error {
	const op = "storage.postgres.UpdatePassword"

	query := `UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, passHash, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) Users(ctx context.Context) ([]models.User, error) {
	const op = "storage.postgres.Users"

	query := `
		SELECT id, name, username, email, password_hash, verified, created_at, updated_at
		FROM users
		ORDER BY created_at;
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		var u models.User
		err := rows.Scan(
			&u.ID,
			&u.Name,
			&u.Username,
			&u.Email,
			&u.PassHash,
			&u.Verified,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return users, nil
}

func (r *PostgresRepo) scanUser(ctx context.Context, op, query string, args ...any) (models.User, error) {
	row := r.pool.QueryRow(ctx, query, args...)

	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.Verified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
