package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AskFox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	// Touch creates the user on first login and records the login time and
	// latest email otherwise.
	Touch(ctx context.Context, id, email string, at time.Time) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// Delete removes the user; the subscription record cascades.
	Delete(ctx context.Context, id string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
	}
}
