// Package models defines the domain entities of the media mirror.
//
// The package contains two categories of types:
//
// 1. Catalog types: what the remote library reports
//   - [CatalogItem] : one remote media item with its available renditions
//   - [DownloadOption] : one rendition (URL, byte size, quality)
//
// 2. Ledger types: what the local ledger tracks
//   - [Item] : the persisted transfer record keyed by resource key
//   - [Status] : the closed set of transfer states and their allowed transitions
//
// [Status] is an enumerated type; its persisted key ([Status.String]) and its display
// label ([Status.Label]) are separate so presentation never leaks into stored data.
package models
