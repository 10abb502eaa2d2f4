package userstore

import (
	"github.com/metalhouse/fleshrecord/internal/domain"
)

// Store defines access to per-user configuration documents.
type Store interface {
	Get(userID string) (*domain.UserProfile, error)
	List() ([]string, error)
	Save(profile *domain.UserProfile) error
	Delete(userID string) error
}
