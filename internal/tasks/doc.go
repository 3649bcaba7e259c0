// Package tasks orchestrates download runs against the transfer ledger with real-time progress reporting.
//
// # Core Operations
//
// [Engine] exposes four operations:
//
//  1. [Engine.Download] : Full download pass
//     - Resets records left in "downloading" by a crashed run
//     - Sweeps downloaded records whose files went missing or empty
//     - Claims eligible records in batches of Limit and transfers them with at most
//     Concurrency in flight, until no eligible record remains
//     - Sweeps again, so a run never ends with a stale "downloaded" record
//
//  2. [Engine.Sweep] : Integrity check of every "downloaded" record against disk
//     - Missing, pathless and zero-byte files are demoted to "not_downloaded"
//     - Leftover partial files are removed
//
//  3. [Engine.Reconcile] : Three-way diff of catalog, ledger and destination directory
//     - Reports catalog items missing from the ledger, records missing on disk and
//     orphan files; unless dry run, marks the first two for download
//
//  4. [Engine.Refresh] : Records new catalog items as "not_downloaded"
//
// # Transfers
//
// [Engine.TransferItem] claims one record, picks streaming or buffered transfer by size,
// and records the result. A zero-byte file is failed and re-armed until the record
// reaches MaxAttempts. A canceled transfer releases its claim. A failing or panicking
// transfer never affects its siblings.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [Engine] depends on:
//   - [Ledger] : persistence (repositories.ItemRepository)
//   - [services.Catalog] : the remote item list, only for Refresh and Reconcile
//   - [services.Fetcher] : the byte transfer primitive
package tasks
