package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"paperchat/internal/model"
)

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

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.getBy("username = ?", username)
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.getBy("email = ?", email)
}

// GetByLogin resolves a login that may be either a username or an email.
func (r *UserRepository) GetByLogin(login string) (*model.User, error) {
	return r.getBy("username = ? OR email = ?", login, login)
}

func (r *UserRepository) UpdateEducationLevel(id uint, level string) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("education_level", level).Error; err != nil {
		return fmt.Errorf("update education level failed: %w", err)
	}
	return nil
}

func (r *UserRepository) getBy(query string, args ...interface{}) (*model.User, error) {
	var user model.User
	if err := r.db.Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return &user, nil
}
