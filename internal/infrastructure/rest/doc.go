// Package rest implements the snapshot client for Gray Sync Core.
//
// The snapshot backend exposes the full current state of each device over
// HTTP. The gateway pulls it once at startup and again after every push
// channel drop, because the push channel carries no replay.
//
// Endpoints:
//
//	GET {base}/api/v1/devices/{device}/parameters
//	GET {base}/api/v1/devices/{device}/activity
//
// Both return a JSON object mapping slot keys to entries, the same shape
// the delta frames use.
//
// Failures are wrapped in ErrUnavailable so the gateway can treat every
// snapshot error as retryable.
package rest
