// Package store maintains the materialized latest-value projection of the
// record stream.
//
// The store is one more bus subscriber: Run subscribes once and folds every
// record into a key→value map, last-write-wins by bus sequence. Nothing else
// writes into the projection, and readers never block writers out — each
// apply replaces a map entry atomically under a short write lock.
//
// Two flavors share the one write path: the lightweight store keeps values
// only, and the asset-aware store additionally holds a catalog reference
// for read-time enrichment (labels, units, menus). Asset-aware reads
// degrade to plain values when the catalog is absent or failing.
package store
