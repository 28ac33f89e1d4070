// Package repositories implements SQLite persistence for credentials, acquisitions and the catalog mirror.
//
// Correctness constraints live in the schema rather than in application locks:
//   - [CredentialRepository] : one row per user; refreshes are conditional updates keyed on the
//     refresh token that was read, so a concurrent rotation is detected instead of overwritten
//   - [AcquisitionRepository] : UNIQUE(user_id, track_ref); a losing insert reports
//     [shared.ErrRecordConflict] so the caller can re-read the winner
//   - [TrackRepository] : best-effort catalog mirror; [TrackCacheAdapter] ignores duplicates
//
// Per-table counters maintained by [NextSequence] give rows a stable insertion order.
package repositories
