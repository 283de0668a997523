package refreshtokens

import (
	"context"
	"time"

	"github.com/osokin-dev/gatehouse/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, identityID int64, token string, validity time.Duration) error
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Delete(ctx context.Context, token string) error
}
