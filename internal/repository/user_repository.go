package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"listenline/internal/model"
)

// UserRepository stores the accounts on both sides of a session:
// requesters and the counsellors who claim them.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.findOne("username = ?", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.findOne("email = ?", email)
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.findOne("id = ?", id)
}

// GetCounsellor returns the user only while they currently hold the
// counsellor or admin role. Tokens are minted at login, so the role in
// a claim can be stale; the matching engine re-checks it here before
// handing over a waiting request.
func (r *UserRepository) GetCounsellor(id uint) (*model.User, error) {
	return r.findOne("id = ? AND role IN ?", id, []string{model.RoleCounsellor, model.RoleAdmin})
}

func (r *UserRepository) findOne(query string, args ...interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	return &user, nil
}
