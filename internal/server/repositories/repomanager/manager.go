package repomanager

import (
	"context"
	"database/sql"

	"github.com/osokin-dev/gatehouse/internal/dbx"
	"github.com/osokin-dev/gatehouse/internal/server/repositories/identities"
	"github.com/osokin-dev/gatehouse/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
