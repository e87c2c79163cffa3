// Package vectorutils selects a vector.Store backend from configuration.
package vectorutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/notevec/pkg/vector"
	"github.com/papercomputeco/notevec/pkg/vector/chroma"
	"github.com/papercomputeco/notevec/pkg/vector/inmemory"
	"github.com/papercomputeco/notevec/pkg/vector/pgvector"
	"github.com/papercomputeco/notevec/pkg/vector/qdrant"
	"github.com/papercomputeco/notevec/pkg/vector/sqlitevec"
)

// Provider names accepted by NewVectorStore.
const (
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderQdrant   = "qdrant"
	ProviderChroma   = "chroma"
	ProviderMemory   = "memory"
)

type NewVectorStoreOpts struct {
	ProviderType string

	// TargetURL addresses remote providers: a postgres connection string, a
	// qdrant host:port or a chroma URL.
	TargetURL  string
	Collection string

	// DBPath and ExtensionDir configure the sqlite provider.
	DBPath       string
	ExtensionDir string

	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorStore(o *NewVectorStoreOpts) (vector.Store, error) {
	switch o.ProviderType {
	case ProviderSQLite, "":
		return sqlitevec.NewStore(sqlitevec.Config{
			DBPath:       o.DBPath,
			ExtensionDir: o.ExtensionDir,
			Dimensions:   o.Dimensions,
		}, o.Logger)
	case ProviderPostgres:
		return pgvector.NewStore(pgvector.Config{
			ConnString: o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case ProviderQdrant:
		return qdrant.NewStore(qdrant.Config{
			Target:         o.TargetURL,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case ProviderChroma:
		return chroma.NewStore(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case ProviderMemory:
		return inmemory.NewStore(o.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unsupported vector store provider: %s", vector.ErrConfiguration, o.ProviderType)
	}
}
