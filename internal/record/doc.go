// Package record defines the canonical update record: the normalized unit of
// change flowing through Gray Sync Core.
//
// Every payload arriving from a controller — whether a full REST snapshot or
// a realtime delta frame — is flattened into records before anything else
// touches it. A record addresses one parameter slot via its identity key
// (device, pool, channel, index) and carries either a value, metadata, or
// both. Records are immutable once published; a newer record for the same
// identity key supersedes, never mutates, the previous one.
//
// The canonical string form of a slot address is "<pool>.<channel><index>"
// (e.g. "P4.v1"), scoped per device. ParseKey and Key.String round-trip it.
package record
