// Package storage provides SQLite-based persistent storage for fleetdash.
// It holds the directory records (clients, users, access levels, vehicles)
// that the dashboard's remote-search dropdowns page through.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record matches.
var ErrNotFound = errors.New("storage: record not found")

// Store defines the interface for all storage operations.
type Store interface {
	// Records
	UpsertRecord(ctx context.Context, r *Record) error
	GetRecord(ctx context.Context, kind, id string) (*Record, error)
	SearchRecords(ctx context.Context, q SearchQuery) (*SearchResult, error)
	CountRecords(ctx context.Context, kind string) (int, error)

	// Lifecycle
	Close() error
}

// Record is one directory entry.
type Record struct {
	ID              string
	Kind            string
	Name            string
	Description     string
	Status          string
	OwnerID         string // owning client, empty for top-level records
	CreatedAtUnixMs int64
}

// SearchQuery selects one page of records of a kind.
type SearchQuery struct {
	Kind    string
	Text    string // matched against name and description, case-insensitive
	Status  string
	OwnerID string
	Page    int // 1-based; values < 1 mean 1
	PerPage int // 0 means DefaultPerPage; clamped to MaxPerPage
}

// SearchResult is one page of records plus the pagination the API exposes.
type SearchResult struct {
	Items       []Record
	CurrentPage int
	LastPage    int
	Total       int
}

const (
	// DefaultPerPage is used when a query does not ask for a page size.
	DefaultPerPage = 20

	// MaxPerPage bounds a single page.
	MaxPerPage = 100
)
