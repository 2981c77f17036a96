// Package directory holds the dashboard's directory domain: the record
// kinds the remote-search dropdowns page through, the JSON pagination
// envelope the API speaks, and the fetch functions that feed a
// selection.Engine from the API, the gRPC socket or the store directly.
package directory

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/runger/fleetdash/internal/selection"
	"github.com/runger/fleetdash/internal/storage"
)

// Kind names a directory collection.
type Kind string

const (
	KindClients      Kind = "clients"
	KindUsers        Kind = "users"
	KindAccessLevels Kind = "access-levels"
	KindVehicles     Kind = "vehicles"
)

// Kinds lists every collection in display order.
var Kinds = []Kind{KindClients, KindUsers, KindAccessLevels, KindVehicles}

// ErrUnknownKind is returned by ParseKind for names outside Kinds.
var ErrUnknownKind = errors.New("directory: unknown kind")

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Filter keys understood in selection.Query.Extra.
const (
	FilterStatus = "status"
	FilterOwner  = "owner"
)

// Record statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusArchived  = "archived"
)

// Record is one directory entry as served by the API.
type Record struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	OwnerID     string    `json:"ownerId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Label is the text a dropdown shows for r.
func (r Record) Label() string {
	label := r.Name
	if r.Description != "" {
		label += " · " + r.Description
	}
	if r.Status != "" && r.Status != StatusActive {
		label += " (" + r.Status + ")"
	}
	return label
}

// Format is the selection.Formatter for records: the id is the value.
func Format(records []Record) []selection.Option[Record] {
	opts := make([]selection.Option[Record], len(records))
	for i, r := range records {
		opts[i] = selection.Option[Record]{Label: r.Label(), Value: r.ID, Item: r}
	}
	return opts
}

// Option returns r as a selection option, for use as a fallback option.
func (r Record) Option() *selection.Option[Record] {
	return &selection.Option[Record]{Label: r.Label(), Value: r.ID, Item: r}
}

func fromStorage(r storage.Record) Record {
	return Record{
		ID:          r.ID,
		Kind:        Kind(r.Kind),
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		OwnerID:     r.OwnerID,
		CreatedAt:   time.UnixMilli(r.CreatedAtUnixMs).UTC(),
	}
}

func toStorage(r Record) *storage.Record {
	sr := &storage.Record{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		OwnerID:     r.OwnerID,
	}
	if !r.CreatedAt.IsZero() {
		sr.CreatedAtUnixMs = r.CreatedAt.UnixMilli()
	}
	return sr
}
