// Package normalize flattens raw controller payloads into canonical update
// records.
//
// Both channels feed it the same shape: a mapping of composite slot keys
// ("<pool>.<channel><index>") to raw values — a full REST snapshot is just a
// bigger delta. Flatten is pure: no network, no store access, deterministic
// output for the same input.
//
// Backends drift: entries with key shapes or value shapes this code does
// not recognize are skipped and reported as warnings, never a hard failure.
// A corrupt entry must not abort the rest of its batch.
package normalize
