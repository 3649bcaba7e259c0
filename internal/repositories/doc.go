// Package repositories implements SQLite persistence for the transfer ledger.
//
// [ItemRepository] is the only writer of item records. Every write is a single
// statement (or a single transaction for catalog syncs), so callers never observe a
// half-applied change:
//   - [ItemRepository.Upsert] : insert-or-update keyed by resource key
//   - [ItemRepository.SetStatus] : status write guarded by the state machine in [models.CanTransition]
//   - [ItemRepository.Claim] : atomic check-and-set into "downloading"
//   - [ItemRepository.ResetStuck] : crash recovery for rows left "downloading"
//
// Records are ordered by insertion (the autoincrement id), which is the tie-break for
// eligibility queries.
package repositories
