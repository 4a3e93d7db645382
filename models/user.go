package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/kopidata/backoffice_backend/config"
	"bitbucket.org/kopidata/backoffice_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:50;default:'staff'" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateUser(ctx context.Context, username string, password string, role string) (*User, error) {
	db := config.GetDB()

	if username == "" || password == "" {
		return nil, &ValidationError{Field: "username", Reason: "username and password are required"}
	}
	if err := utils.ValidateUnique[User](ctx, "username", username, 0); err != nil {
		return nil, &ValidationError{Field: "username", Reason: "already taken"}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// AuthenticateUser checks credentials and issues a session token.
func AuthenticateUser(ctx context.Context, username string, password string) (*User, string, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", errors.New("invalid username or password")
		}
		return nil, "", err
	}

	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", errors.New("invalid username or password")
	}

	token, err := utils.JwtGenerate(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}
