package services

import (
	"context"

	"github.com/desertthunder/vmx/internal/models"
)

// Catalog lists the remote items that should exist in the ledger.
type Catalog interface {
	// FetchAll returns the complete item set. Any failure rejects the whole listing so
	// callers never act on a partial catalog.
	FetchAll(ctx context.Context) ([]models.CatalogItem, error)

	// Name returns the name of the catalog provider (e.g. "Vimeo")
	Name() string
}

// Fetcher transfers the body of a URL to a file.
//
// Implementations write to a temporary sibling of dst and only rename it into place
// once the transfer succeeds, so an interrupted transfer never leaves a file at dst.
type Fetcher interface {
	// Stream copies the body to disk as it arrives.
	Stream(ctx context.Context, link, dst string, obs Observer) (int64, error)

	// Fetch buffers the body in memory before writing it out.
	Fetch(ctx context.Context, link, dst string, obs Observer) (int64, error)
}

// Observer receives transfer progress. done never decreases within one transfer and
// total is zero when the size is unknown.
type Observer interface {
	OnProgress(done, total int64)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(done, total int64)

func (f ObserverFunc) OnProgress(done, total int64) { f(done, total) }

func notify(obs Observer, done, total int64) {
	if obs != nil {
		obs.OnProgress(done, total)
	}
}
