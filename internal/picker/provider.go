package picker

import (
	"context"

	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/selection"
)

// Provider supplies the fetch function behind each tab and resolves preset
// values by id. *directory.Service and *rpc.Client satisfy it directly;
// HTTPProvider adapts the HTTP API.
type Provider interface {
	Fetcher(kind directory.Kind, perPage int) selection.FetchFunc[directory.Record]
	Get(ctx context.Context, kind directory.Kind, id string) (directory.Record, error)
}

// HTTPProvider builds an HTTPSource per record kind.
type HTTPProvider struct {
	BaseURL string
	Options []directory.HTTPOption
}

// Fetcher implements Provider.
func (p HTTPProvider) Fetcher(kind directory.Kind, perPage int) selection.FetchFunc[directory.Record] {
	opts := append([]directory.HTTPOption{directory.WithPerPage(perPage)}, p.Options...)
	return directory.NewHTTPSource(p.BaseURL, kind, opts...).Fetch
}

// Get implements Provider.
func (p HTTPProvider) Get(ctx context.Context, kind directory.Kind, id string) (directory.Record, error) {
	return directory.NewHTTPSource(p.BaseURL, kind, p.Options...).Get(ctx, id)
}
