package models

import "time"

type User struct {
	ID               string     `json:"id" bson:"_id"`
	FullName         string     `json:"fullName" bson:"fullName"`
	Email            string     `json:"email" bson:"email"`
	PasswordHash     string     `json:"-" bson:"passwordHash"`
	RefreshTokenHash string     `json:"-" bson:"refreshTokenHash,omitempty"`
	RefreshExpiresAt *time.Time `json:"-" bson:"refreshExpiresAt,omitempty"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty" bson:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// PublicUser is the projection of a User that may leave the process:
// no password hash and no refresh token.
type PublicUser struct {
	ID          string     `json:"id"`
	FullName    string     `json:"fullName"`
	Email       string     `json:"email"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
