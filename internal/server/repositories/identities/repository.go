package identities

import (
	"context"

	"github.com/osokin-dev/gatehouse/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByID(ctx context.Context, id int64) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.Identity, error)
	AttachProvider(ctx context.Context, id int64, providerID string) error
	SetProfile(ctx context.Context, id int64, username, avatarKey string) error
	SetTwoFA(ctx context.Context, id int64, secret string, enabled bool) error
}
