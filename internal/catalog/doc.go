// Package catalog resolves human-readable descriptors for parameter slots:
// labels, units, and permission-filtered menu structure.
//
// The catalog is a read-only, best-effort collaborator. It enriches reads
// from the materialized store but never drives synchronization — the sync
// engine is fully functional with no catalog at all, and asset-aware reads
// degrade to plain values when the catalog is missing or failing.
//
// The SQLite-backed repository is the production implementation; the tables
// it reads are created by the embedded migrations.
package catalog
