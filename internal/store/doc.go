// Package store provides persistent identity storage for cumulus-auth.
//
// # Architecture
//
// The package defines a single Store interface covering the identity
// entities the authorization core depends on:
//
//   - User: principal with an access/secret credential pair
//   - Project: tenant with one manager and a membership set
//   - Role grants: (user, role, scope) tuples, scope global or per-project
//   - KeyPair: stored public keys (private keys are never persisted)
//   - VPNAllocation: the exclusive (address, port) lease held by a project
//
// Two implementations are provided:
//
//   - SQLiteStore: durable backend using modernc.org/sqlite with WAL mode
//   - MemStore: mutex-guarded in-memory backend for tests and ephemeral use
//
// Services receive a Store by injection; there is no process-wide
// singleton and no hidden backend selection.
//
// # Conventions
//
// Absent entities are reported with ErrNotFound and key collisions with
// ErrDuplicate; callers match with errors.Is. Idempotent operations
// (adding an existing role grant or project member) succeed silently.
package store
