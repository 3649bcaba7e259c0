// Package services implements the remote collaborators of a download run.
//
// # Catalog
//
// [Catalog] lists the items the ledger should track. [VimeoService] implements it over the
// Vimeo REST API: the access token is attached by an [oauth2.StaticTokenSource] transport,
// pages are requested through a [rate.Limiter], and paging.next is followed until it is
// null. A failure on any page rejects the whole listing with [shared.ErrCatalogFetch].
//
// # Fetcher
//
// [Fetcher] moves the bytes of one download link to disk. [HTTPFetcher] offers two
// strategies with the same guarantees:
//   - Stream copies the body chunk by chunk, for large files
//   - Fetch buffers the body in memory, for small files
//
// Both write to dst+[PartSuffix] and rename into place only on success, and both report
// non-decreasing progress to an [Observer]. Non-2xx responses fail with
// [shared.ErrBadStatus].
package services
