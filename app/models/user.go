package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// User mirrors an identity from the external identity provider. The ID is
// the provider's subject claim; the row exists from the first authenticated
// request on and owns exactly one SubscriptionRecord.
type User struct {
	ID           string              `gorm:"primaryKey;type:varchar(64)" json:"id" validate:"required,max=64"`
	Email        string              `gorm:"type:varchar(200);default:''" json:"email" validate:"omitempty,email,max=200"`
	LastLoginAt  *time.Time          `gorm:"type:timestamp;default:null" json:"last_login_at"`
	Subscription *SubscriptionRecord `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUser builds a validated user from identity claims.
func NewUser(id, email string) (*User, error) {
	u := &User{
		ID:    strings.TrimSpace(id),
		Email: strings.ToLower(strings.TrimSpace(email)),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}
