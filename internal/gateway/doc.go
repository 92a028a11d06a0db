// Package gateway drives the synchronization state machine: prime the full
// parameter state over REST, subscribe to the realtime delta stream, merge
// both into one ordered record stream on the bus, and start over after
// every disconnect.
//
// The load-bearing ordering invariant lives here: internal consumers are
// subscribed to the bus before the snapshot is published, and the snapshot
// is published before the push subscription is armed. A consumer attached
// this way sees a contiguous stream — snapshot records first, then every
// delta — with no gap and no replay. Reversing any part of that order can
// lose the first delta that races the end of snapshot processing.
//
// The push channel has no replay: after a reconnect the deltas missed
// during the gap are gone, so a fresh prime is mandatory before going live
// again. Re-primed records are ordinary publishes with higher sequence
// numbers; subscribers never see sequences go backward.
//
// Collaborators (REST snapshotter, push transport, bus consumers) are
// interfaces owned by this package; the infrastructure packages implement
// them.
package gateway
