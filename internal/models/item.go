package models

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/desertthunder/vmx/internal/shared"
)

// FileExtension is appended to every downloaded file.
const FileExtension = ".mp4"

// DownloadOption describes one available rendition of a remote item.
type DownloadOption struct {
	Quality string `json:"quality"`
	Link    string `json:"link"`
	Size    int64  `json:"size"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// CatalogItem is a remote media item as reported by the catalog.
type CatalogItem struct {
	ResourceKey string           `json:"resource_key"`
	Name        string           `json:"name"`
	Downloads   []DownloadOption `json:"download"`
}

// BestDownloadOption selects the largest rendition. The first option wins on ties, and an
// empty list yields the zero option.
func BestDownloadOption(options []DownloadOption) DownloadOption {
	var best DownloadOption
	for i, opt := range options {
		if i == 0 || opt.Size > best.Size {
			best = opt
		}
	}
	return best
}

// Item is the persisted transfer record of one remote media item.
type Item struct {
	ResourceKey string
	Name        string
	Download    DownloadOption
	Status      Status
	Path        string // set only when Status is StatusDownloaded
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewItem builds a fresh not_downloaded record from a catalog entry.
func NewItem(c CatalogItem) *Item {
	now := time.Now()
	return &Item{
		ResourceKey: c.ResourceKey,
		Name:        c.Name,
		Download:    BestDownloadOption(c.Downloads),
		Status:      StatusNotDownloaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// FileName returns the file name the item is stored under.
func (i *Item) FileName() string {
	return shared.SafeFilename(i.Name) + FileExtension
}

// QualifiedFileName returns [Item.FileName] with the resource key appended, for records
// whose name is shared with another record.
func (i *Item) QualifiedFileName() string {
	return fmt.Sprintf("%s [%s]%s", shared.SafeFilename(i.Name), shared.SafeFilename(i.ResourceKey), FileExtension)
}

// FileNames assigns each record in items, by resource key, a file name no other record
// in items resolves to.
//
// A record with a recorded path keeps its base name. Any other record is stored as
// [Item.FileName] unless another record resolves to the same name under
// [shared.NormalizeFilename], in which case it gets [Item.QualifiedFileName].
func FileNames(items []*Item) map[string]string {
	owners := make(map[string]string, len(items))
	contested := make(map[string]bool)
	for _, item := range items {
		key := shared.NormalizeFilename(item.ExpectedFileName())
		if owner, ok := owners[key]; ok && owner != item.ResourceKey {
			contested[key] = true
			continue
		}
		owners[key] = item.ResourceKey
	}

	names := make(map[string]string, len(items))
	for _, item := range items {
		switch {
		case item.Path != "":
			names[item.ResourceKey] = filepath.Base(item.Path)
		case contested[shared.NormalizeFilename(item.FileName())]:
			names[item.ResourceKey] = item.QualifiedFileName()
		default:
			names[item.ResourceKey] = item.FileName()
		}
	}
	return names
}

// ExpectedFileName is the name the item should have on disk: the base name of its
// recorded path when downloaded, otherwise [Item.FileName].
func (i *Item) ExpectedFileName() string {
	if i.Path != "" {
		return filepath.Base(i.Path)
	}
	return i.FileName()
}

// Validate checks the record's invariants.
func (i *Item) Validate() error {
	if i.ResourceKey == "" {
		return fmt.Errorf("%w: resource key is required", shared.ErrInvalidInput)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: name is required for %s", shared.ErrInvalidInput, i.ResourceKey)
	}
	if _, ok := statusKeys[i.Status]; !ok {
		return fmt.Errorf("%w: unknown status %d", shared.ErrInvalidInput, int(i.Status))
	}
	if (i.Status == StatusDownloaded) != (i.Path != "") {
		return fmt.Errorf("%w: path must be set if and only if status is %s", shared.ErrInvalidInput, StatusDownloaded)
	}
	return nil
}

// StatusDetail carries the optional fields written alongside a status change.
type StatusDetail struct {
	Path      string // required when moving to StatusDownloaded, cleared otherwise
	LastError string // recorded when moving to StatusDownloadFailed
}
