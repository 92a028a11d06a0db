// Package bus provides the in-process multicast bus: a single-producer,
// many-consumer ordered publish/subscribe primitive for canonical update
// records.
//
// The bus assigns every published record a strictly increasing sequence
// number (starting at 1) and delivers it to every subscription active at
// publish time, in publish order. Subscriptions are fully independent: a
// slow consumer never delays publishing or delivery to other consumers,
// and no record is ever silently dropped — each subscription owns an
// unbounded FIFO staging queue drained by its own goroutine into a bounded
// delivery channel.
//
// Records are not buffered for late subscribers: a subscription only sees
// records published after it was created. Callers that need "snapshot plus
// every later delta" must subscribe before the snapshot is published; that
// ordering is the gateway's responsibility, not the bus's.
package bus
