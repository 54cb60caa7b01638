package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"wellness-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user profile and presence persistence.
type UserRepository interface {
	UpsertOnline(ctx context.Context, user models.User) (models.User, error)
	SetOnline(ctx context.Context, userID string, online bool) error
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpsertOnline merges the profile fields and marks the user online.
func (r *UserRepo) UpsertOnline(ctx context.Context, user models.User) (models.User, error) {
	var out models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (id, email, display_name, avatar_url, online, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, NOW())
        ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name,
            avatar_url = EXCLUDED.avatar_url, online = TRUE, updated_at = NOW()
        RETURNING id, email, display_name, avatar_url, online, updated_at`,
		user.ID, user.Email, user.DisplayName, user.AvatarURL).StructScan(&out)
	return out, err
}

// SetOnline toggles the presence flag.
func (r *UserRepo) SetOnline(ctx context.Context, userID string, online bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET online=$2, updated_at=NOW() WHERE id=$1`, userID, online)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUser fetches a single user.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, email, display_name, avatar_url, online, updated_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every known user ordered by email.
func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := r.db.SelectContext(ctx, &users, `SELECT id, email, display_name, avatar_url, online, updated_at FROM users ORDER BY email ASC`)
	return users, err
}
