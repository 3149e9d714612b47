package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sjdodge123/uptime-atlas/internal/models"
)

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	HasUsers(ctx context.Context) (bool, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, username, role string) error
	UpdateTimezone(ctx context.Context, username, timezone string) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	List(ctx context.Context) ([]*models.User, error)
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// HasUsers reports whether any account exists. Drives first-run setup.
func (r *UserRepository) HasUsers(ctx context.Context) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM users LIMIT 1").Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check users: %w", err)
	}
	return true, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, role, timezone, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Timezone, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, timezone, created_at) VALUES (?, ?, ?, ?, NOW())",
		user.Username, user.PasswordHash, user.Role, user.Timezone,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read insert id: %w", err)
	}
	user.ID = uint64(id)
	return nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, username, role string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET role = ? WHERE username = ?", role, username)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateTimezone(ctx context.Context, username, timezone string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET timezone = ? WHERE username = ?", timezone, username)
	if err != nil {
		return fmt.Errorf("failed to update timezone: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, username, password_hash, role, timezone, created_at FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Timezone, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
