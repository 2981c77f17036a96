package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/runger/fleetdash/internal/selection"
	"github.com/runger/fleetdash/internal/storage"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("directory: record not found")

// ListParams are the list parameters shared by the HTTP and gRPC surfaces.
type ListParams struct {
	Search  string
	Page    int
	PerPage int
	Status  string
	Owner   string
}

// ParamsFromQuery maps an engine query and page onto ListParams.
func ParamsFromQuery(q selection.Query, page, perPage int) ListParams {
	return ListParams{
		Search:  q.Text,
		Page:    page,
		PerPage: perPage,
		Status:  q.Extra[FilterStatus],
		Owner:   q.Extra[FilterOwner],
	}
}

// Service answers directory lookups from a store.
type Service struct {
	store storage.Store
}

// NewService returns a Service backed by store.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// List returns one page of kind as an envelope.
func (s *Service) List(ctx context.Context, kind Kind, p ListParams) (Envelope, error) {
	res, err := s.store.SearchRecords(ctx, storage.SearchQuery{
		Kind:    string(kind),
		Text:    strings.TrimSpace(p.Search),
		Status:  p.Status,
		OwnerID: p.Owner,
		Page:    p.Page,
		PerPage: p.PerPage,
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("directory: list %s: %w", kind, err)
	}

	items := make([]Record, 0, len(res.Items))
	for _, r := range res.Items {
		items = append(items, fromStorage(r))
	}
	perPage := p.PerPage
	if perPage <= 0 {
		perPage = storage.DefaultPerPage
	}
	return Envelope{Data: EnvelopeData{
		Items: items,
		Pagination: Pagination{
			CurrentPage: res.CurrentPage,
			LastPage:    res.LastPage,
			PerPage:     min(perPage, storage.MaxPerPage),
			Total:       res.Total,
		},
	}}, nil
}

// Get returns the record of kind with id.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	r, err := s.store.GetRecord(ctx, string(kind), id)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("directory: get %s/%s: %w", kind, id, err)
	}
	return fromStorage(*r), nil
}

// Put stores r.
func (s *Service) Put(ctx context.Context, r Record) error {
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if err := s.store.UpsertRecord(ctx, toStorage(r)); err != nil {
		return fmt.Errorf("directory: put %s/%s: %w", r.Kind, r.ID, err)
	}
	return nil
}

// Fetcher returns a fetch function that reads kind straight from the store,
// for pickers running in the same process as the data.
func (s *Service) Fetcher(kind Kind, perPage int) selection.FetchFunc[Record] {
	return func(ctx context.Context, q selection.Query, page int) (selection.Page[Record], error) {
		env, err := s.List(ctx, kind, ParamsFromQuery(q, page, perPage))
		if err != nil {
			return selection.Page[Record]{}, err
		}
		return env.Page(), nil
	}
}
