// Package store keeps a SQLite ledger of decodecheck runs.
//
// Each run gets one row in runs, keyed by a UUIDv7, and one row per
// completed Job in outcomes. Jobs cut short by an interrupt have no
// outcome row.
//
// # Database Configuration
//
//   - WAL mode: history can be read while a run is writing
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: outcomes always belong to a run
//
// Queries order by started_at then id so listings are stable.
package store
