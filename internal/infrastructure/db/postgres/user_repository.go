package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/hcserver/accounts/internal/core/domain"
)

const uniqueViolation = "23505"

// UserRepository implements ports.UserRepository on PostgreSQL.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

type pgUser struct {
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toPgUser(u *domain.User) pgUser {
	return pgUser{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func (pu pgUser) toDomain() *domain.User {
	return &domain.User{
		Username:     pu.Username,
		PasswordHash: pu.PasswordHash,
		Email:        pu.Email,
		DisplayName:  pu.DisplayName,
		CreatedAt:    pu.CreatedAt.UTC(),
		UpdatedAt:    pu.UpdatedAt.UTC(),
	}
}

// Create inserts a new user. The primary key on username turns a duplicate
// into domain.ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (username, password_hash, email, display_name, created_at, updated_at)
		VALUES (:username, :password_hash, :email, :display_name, :created_at, :updated_at)`,
		toPgUser(user))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUsername retrieves a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var pu pgUser
	err := r.db.GetContext(ctx, &pu, `
		SELECT username, password_hash, email, display_name, created_at, updated_at
		FROM users WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return pu.toDomain(), nil
}

// Update overwrites the mutable fields of an existing user.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE users
		SET password_hash = :password_hash, email = :email,
		    display_name = :display_name, updated_at = :updated_at
		WHERE username = :username`,
		toPgUser(user))
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

// Delete removes a user by username.
func (r *UserRepository) Delete(ctx context.Context, username string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
