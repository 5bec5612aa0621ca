package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// UserRepo reads profiles and credits loyalty points.  Accounts are created
// and edited by the identity service.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches the profile fields checkout and notifications need.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,full_name,role,phone,address_district,address_city,address_street,loyalty_points FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.FullName, &u.Role,
		&u.Address.Phone, &u.Address.District, &u.Address.City, &u.Address.Street, &u.LoyaltyPoints)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// AddLoyaltyPointsTx credits points inside the settlement transaction.
func (r *UserRepo) AddLoyaltyPointsTx(ctx context.Context, tx *sql.Tx, id uint64, points int64) error {
	if points <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, "UPDATE users SET loyalty_points = loyalty_points + ? WHERE id = ?", points, id)
	return err
}
