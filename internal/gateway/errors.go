package gateway

import "errors"

// Domain errors for the gateway package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, gateway.ErrSnapshot) {
//	    // prime attempt failed; the gateway stays in priming and retries
//	}
var (
	// ErrSnapshot wraps a failed REST prime attempt. Always retryable and
	// state-preserving: the gateway remains in priming.
	ErrSnapshot = errors.New("gateway: snapshot failed")

	// ErrTransportDown wraps a transport disconnect or handshake failure.
	// Recoverable: the gateway transitions to reconnecting and re-primes.
	ErrTransportDown = errors.New("gateway: transport down")

	// ErrProtocolInvariant is reported when the remote side breaks the
	// subscription contract (e.g. confirms a device that was never
	// requested). Fatal to that device's scope only; the gateway as a
	// whole keeps running.
	ErrProtocolInvariant = errors.New("gateway: protocol invariant violated")

	// ErrPrimeExhausted is returned by Run when the configured maximum
	// number of prime attempts is reached without a successful snapshot.
	ErrPrimeExhausted = errors.New("gateway: prime attempts exhausted")

	// ErrNotRunning is returned by operations that need an active run loop.
	ErrNotRunning = errors.New("gateway: not running")
)
