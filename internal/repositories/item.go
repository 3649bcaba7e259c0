package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

const itemColumns = `resource_key, name, download_link, download_size, download_quality,
	status, path, attempts, last_error, created_at, updated_at`

// ItemRepository persists [models.Item] records keyed by resource key.
type ItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new ItemRepository with the given database connection
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Get retrieves an item by resource key.
func (r *ItemRepository) Get(ctx context.Context, key string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE resource_key = ?`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrItemNotFound, key)
	}
	return item, err
}

// FindAll returns every record in insertion order.
func (r *ItemRepository) FindAll(ctx context.Context) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY id ASC`
	return r.query(ctx, query)
}

// FindByStatus returns the records in any of the given states, in insertion order.
func (r *ItemRepository) FindByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Item, error) {
	if len(statuses) == 0 {
		return r.FindAll(ctx)
	}

	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, s.String())
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE status IN (` + placeholders(len(statuses)) + `) ORDER BY id ASC`
	return r.query(ctx, query, args...)
}

// FindEligibleForDownload returns up to limit not_downloaded records in insertion order.
// A limit of zero or less returns every eligible record.
func (r *ItemRepository) FindEligibleForDownload(ctx context.Context, limit int) ([]*models.Item, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE status = ? ORDER BY id ASC LIMIT ?`
	return r.query(ctx, query, models.StatusNotDownloaded.String(), limit)
}

// Upsert inserts the item or, when its resource key exists, replaces its mutable fields.
//
// The attempt counter and creation time of an existing record are preserved.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	ts := now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = ts
	}
	item.UpdatedAt = ts

	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_key) DO UPDATE SET
			name = excluded.name,
			download_link = excluded.download_link,
			download_size = excluded.download_size,
			download_quality = excluded.download_quality,
			status = excluded.status,
			path = excluded.path,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		item.ResourceKey,
		item.Name,
		item.Download.Link,
		item.Download.Size,
		item.Download.Quality,
		item.Status.String(),
		item.Path,
		item.Attempts,
		item.LastError,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ResourceKey, err)
	}

	return nil
}

// SyncCatalog records a catalog listing in one transaction: unknown items are inserted
// as not_downloaded, known items get their name and download option refreshed with
// their status untouched. Returns the number of inserted records.
func (r *ItemRepository) SyncCatalog(ctx context.Context, catalog []models.CatalogItem) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, c := range catalog {
		item := models.NewItem(c)
		if err := item.Validate(); err != nil {
			return 0, fmt.Errorf("validation failed: %w", err)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM items WHERE resource_key = ?)`, item.ResourceKey).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check item %s: %w", item.ResourceKey, err)
		}

		ts := now()
		if exists {
			_, err = tx.ExecContext(ctx, `
				UPDATE items
				SET name = ?, download_link = ?, download_size = ?, download_quality = ?, updated_at = ?
				WHERE resource_key = ?`,
				item.Name, item.Download.Link, item.Download.Size, item.Download.Quality, ts, item.ResourceKey,
			)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (`+itemColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, '', 0, '', ?, ?)`,
				item.ResourceKey, item.Name, item.Download.Link, item.Download.Size, item.Download.Quality,
				models.StatusNotDownloaded.String(), ts, ts,
			)
			inserted++
		}
		if err != nil {
			return 0, fmt.Errorf("failed to sync item %s: %w", item.ResourceKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit catalog sync: %w", err)
	}

	return inserted, nil
}

// SetStatus moves a record to a new status in one statement.
//
// The write only applies when the record's current status may transition to the new
// one ([models.CanTransition]); otherwise [shared.ErrInvalidTransition] is returned.
// detail may be nil except when moving to downloaded, which requires a path.
func (r *ItemRepository) SetStatus(ctx context.Context, key string, to models.Status, detail *models.StatusDetail) error {
	if detail == nil {
		detail = &models.StatusDetail{}
	}
	if to == models.StatusDownloaded && detail.Path == "" {
		return fmt.Errorf("%w: path is required to mark %s as %s", shared.ErrInvalidInput, key, to)
	}

	path := ""
	if to == models.StatusDownloaded {
		path = detail.Path
	}

	query := `UPDATE items SET status = ?, path = ?, updated_at = ?`
	args := []any{to.String(), path, now()}

	switch to {
	case models.StatusDownloadFailed:
		query += `, last_error = ?`
		args = append(args, detail.LastError)
	case models.StatusDownloaded:
		query += `, last_error = ''`
	}

	query += ` WHERE resource_key = ?`
	args = append(args, key)

	if sources := models.SourcesFor(to); sources != nil {
		query += ` AND status IN (` + placeholders(len(sources)) + `)`
		for _, s := range sources {
			args = append(args, s.String())
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set status of %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		return nil
	}

	current, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s -> %s", shared.ErrInvalidTransition, key, current.Status, to)
}

// Claim atomically moves an eligible record into downloading and counts the attempt.
// Returns false when another caller claimed it first or it is not claimable.
func (r *ItemRepository) Claim(ctx context.Context, key string) (bool, error) {
	sources := models.SourcesFor(models.StatusDownloading)

	args := []any{models.StatusDownloading.String(), now(), key}
	for _, s := range sources {
		args = append(args, s.String())
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET status = ?, attempts = attempts + 1, path = '', updated_at = ?
		WHERE resource_key = ? AND status IN (`+placeholders(len(sources))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// ResetStuck returns every downloading record to not_downloaded and reports how many
// changed. Run before a download pass to recover from a crash mid-transfer.
func (r *ItemRepository) ResetStuck(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET status = ?, path = '', updated_at = ? WHERE status = ?`,
		models.StatusNotDownloaded.String(), now(), models.StatusDownloading.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return result.RowsAffected()
}

// ResetFailed returns every download_failed record to not_downloaded with a fresh
// attempt budget.
func (r *ItemRepository) ResetFailed(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET status = ?, path = '', attempts = 0, last_error = '', updated_at = ? WHERE status = ?`,
		models.StatusNotDownloaded.String(), now(), models.StatusDownloadFailed.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (r *ItemRepository) Stats(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.Status]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		status, err := models.ParseStatus(key)
		if err != nil {
			return nil, err
		}
		stats[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}

func (r *ItemRepository) query(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// scanItem scans a single row from [sql.Row] or [sql.Rows] into a [models.Item]
func scanItem(scanner interface{ Scan(dest ...any) error }) (*models.Item, error) {
	var (
		item      models.Item
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	err := scanner.Scan(
		&item.ResourceKey,
		&item.Name,
		&item.Download.Link,
		&item.Download.Size,
		&item.Download.Quality,
		&status,
		&item.Path,
		&item.Attempts,
		&item.LastError,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.Status, err = models.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("failed to scan item %s: %w", item.ResourceKey, err)
	}
	item.CreatedAt = createdAt
	item.UpdatedAt = updatedAt

	return &item, nil
}
