package profile_repo

import (
	"context"

	"checkout/internal/domain"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
}
