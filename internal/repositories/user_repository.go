package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"livechat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the shared users table. The rest of the application
// owns user records; this service only looks them up.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	ListByRole(ctx context.Context, role string) ([]models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, name, role FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListByRole returns users holding the role ordered by id, so repeated calls
// iterate candidates in a stable order.
func (r *UserRepo) ListByRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, name, role FROM users WHERE role=$1 ORDER BY id ASC`, role)
	return users, err
}

// BulkUsers fetches multiple users in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}

	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, name, role FROM users WHERE id = ANY($1) ORDER BY id ASC`, pq.Int64Array(id64s))
	return users, err
}
