// Package historyutils is the history store utility package
package historyutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/history"
	"github.com/docuchatco/docuchat/pkg/history/inmemory"
	historymongo "github.com/docuchatco/docuchat/pkg/history/mongo"
	"github.com/docuchatco/docuchat/pkg/history/sqlitevec"
)

type NewStoreOpts struct {
	ProviderType string
	TargetURI    string
	Database     string
	VectorIndex  string
	Dimensions   uint
	Logger       *zap.Logger
}

func NewStore(ctx context.Context, o *NewStoreOpts) (history.Store, error) {
	switch o.ProviderType {
	case "mongo":
		return historymongo.NewStore(ctx, historymongo.Config{
			URI:         o.TargetURI,
			Database:    o.Database,
			VectorIndex: o.VectorIndex,
		}, o.Logger)
	case "sqlite":
		return sqlitevec.NewStore(sqlitevec.Config{
			DBPath:     o.TargetURI,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "memory":
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported history store provider: %s", o.ProviderType)
	}
}
