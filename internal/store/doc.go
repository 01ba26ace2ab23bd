// Package store records tracking sessions in SQLite.
//
// A session holds two append-only logs:
//   - samples: every tracker sample the poller applied, in application order
//   - events: every delegator event published to the scene hub
//
// # Ordering
//
// Both logs are keyed by an autoincrement seq and every read uses
// ORDER BY seq ASC. Replaying a session's samples through a fresh scene
// therefore issues the same requests in the same order, regardless of
// the wall-clock timing of the original run.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Transforms inside events are stored as JSON; unbounded validity window
// edges are written as null since JSON has no infinity.
package store
