package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/normalize"
	"github.com/nerrad567/gray-sync-core/internal/record"
)

// Synchronization states. See the package documentation for the lifecycle.
type State string

// Gateway lifecycle states.
const (
	StateIdle         State = "idle"
	StatePriming      State = "priming"
	StateSubscribing  State = "subscribing"
	StateLive         State = "live"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// State machine events.
const (
	eventPrime     = "prime"
	eventPrimed    = "primed"
	eventConfirmed = "confirmed"
	eventDrop      = "drop"
	eventReprime   = "reprime"
	eventStop      = "stop"
)

// Gateway operation constants.
const (
	// defaultRetryInitial is the first delay between failed prime attempts.
	defaultRetryInitial = 1 * time.Second

	// defaultRetryMax caps the prime retry backoff.
	defaultRetryMax = 30 * time.Second

	// defaultReconnectDelay is the pause before re-priming after a drop.
	defaultReconnectDelay = 500 * time.Millisecond

	// consumerAttachTimeout bounds how long Run waits for internal
	// consumers to subscribe before the first prime is published.
	consumerAttachTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Gateway.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RetryConfig is the prime retry policy: exponential backoff between
// attempts, bounded by MaxDelay. MaxAttempts zero means retry forever.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// Options holds configuration for creating a Gateway.
type Options struct {
	// Devices is the initial device set to synchronize. Required, non-empty.
	Devices []string

	// Snapshotter is the REST collaborator. Required.
	Snapshotter Snapshotter

	// Transport is the push collaborator. Required.
	Transport Transport

	// Bus is the multicast bus the gateway publishes to. Required. The
	// gateway owns its lifecycle: a graceful stop flushes pending
	// publishes and then closes it.
	Bus *bus.Bus

	// Consumers are internal bus subscribers (store, sinks) the gateway
	// attaches before the first prime is published.
	Consumers []Consumer

	// Retry is the prime retry policy. Zero values take defaults.
	Retry RetryConfig

	// PrimeActivity also pulls the activity snapshot on every prime.
	PrimeActivity bool

	// ReconnectDelay is the pause before re-priming after a drop.
	ReconnectDelay time.Duration

	// Logger is optional structured logging.
	Logger Logger
}

// Gateway is the synchronization orchestrator. Create with New, drive with
// Run, inspect with Status, stop via context cancellation or Stop.
//
// Thread Safety: all public methods are safe for concurrent use. The
// session state is mutated only by the Run control loop.
type Gateway struct {
	rest      Snapshotter
	transport Transport
	bus       *bus.Bus
	consumers []Consumer
	retry     RetryConfig
	activity  bool
	reconnect time.Duration
	logger    Logger

	machine *fsm.FSM

	mu           sync.RWMutex
	devices      map[string]struct{} // requested device set
	subscribed   map[string]struct{} // confirmed device set
	session      Session
	lastErr      error
	changedAt    time.Time
	stateChanged chan struct{} // closed and replaced on every transition
	running      bool
	cancel       context.CancelFunc

	warnings uint64 // normalize warnings observed, under mu

	wg sync.WaitGroup
}

// Status is a control-plane snapshot of the gateway.
type Status struct {
	State        State     `json:"state"`
	SessionToken string    `json:"session_token,omitempty"`
	Devices      []string  `json:"devices"`
	Subscribed   []string  `json:"subscribed"`
	LastError    string    `json:"last_error,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
	Published    uint64    `json:"published"`
	Warnings     uint64    `json:"warnings"`
}

// New creates a gateway in the idle state. Call Run to begin synchronizing.
func New(opts Options) (*Gateway, error) {
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("gateway: at least one device is required")
	}
	if opts.Snapshotter == nil {
		return nil, fmt.Errorf("gateway: snapshotter is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("gateway: transport is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("gateway: bus is required")
	}

	retry := opts.Retry
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = defaultRetryInitial
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = defaultRetryMax
	}
	reconnect := opts.ReconnectDelay
	if reconnect <= 0 {
		reconnect = defaultReconnectDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	g := &Gateway{
		rest:         opts.Snapshotter,
		transport:    opts.Transport,
		bus:          opts.Bus,
		consumers:    opts.Consumers,
		retry:        retry,
		activity:     opts.PrimeActivity,
		reconnect:    reconnect,
		logger:       logger,
		devices:      make(map[string]struct{}, len(opts.Devices)),
		subscribed:   make(map[string]struct{}),
		changedAt:    time.Now().UTC(),
		stateChanged: make(chan struct{}),
	}
	for _, id := range opts.Devices {
		g.devices[id] = struct{}{}
	}

	g.machine = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventPrime, Src: []string{string(StateIdle)}, Dst: string(StatePriming)},
			{Name: eventPrimed, Src: []string{string(StatePriming)}, Dst: string(StateSubscribing)},
			{Name: eventConfirmed, Src: []string{string(StateSubscribing)}, Dst: string(StateLive)},
			{Name: eventDrop, Src: []string{string(StateSubscribing), string(StateLive)}, Dst: string(StateReconnecting)},
			{Name: eventReprime, Src: []string{string(StateReconnecting)}, Dst: string(StatePriming)},
			{Name: eventStop, Src: []string{
				string(StateIdle), string(StatePriming), string(StateSubscribing),
				string(StateLive), string(StateReconnecting),
			}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				g.onTransition(State(e.Src), State(e.Dst))
			},
		},
	)

	return g, nil
}

// onTransition records the state change and wakes WaitState callers.
func (g *Gateway) onTransition(from, to State) {
	g.mu.Lock()
	g.changedAt = time.Now().UTC()
	close(g.stateChanged)
	g.stateChanged = make(chan struct{})
	g.mu.Unlock()

	g.logger.Info("state changed", "from", string(from), "to", string(to))
}

// event fires a state machine event. Illegal transitions indicate a bug in
// the control loop and are logged, never panicked on.
func (g *Gateway) event(ctx context.Context, name string) {
	if err := g.machine.Event(ctx, name); err != nil {
		g.logger.Error("state machine rejected event",
			"event", name, "state", g.machine.Current(), "error", err)
	}
}

// CurrentState returns the gateway's lifecycle state.
func (g *Gateway) CurrentState() State {
	return State(g.machine.Current())
}

// Status returns a control-plane snapshot: state, session identifiers and
// the failure detail consumers of the bus never see (they only observe
// stalls during priming/reconnecting).
func (g *Gateway) Status() Status {
	// Read the machine state before taking g.mu; the transition callback
	// acquires g.mu while the machine's own lock is held.
	current := State(g.machine.Current())

	g.mu.RLock()
	defer g.mu.RUnlock()

	st := Status{
		State:        current,
		SessionToken: g.session.Token,
		Devices:      sortedKeys(g.devices),
		Subscribed:   sortedKeys(g.subscribed),
		ChangedAt:    g.changedAt,
		Published:    g.bus.Seq(),
		Warnings:     g.warnings,
	}
	if g.lastErr != nil {
		st.LastError = g.lastErr.Error()
	}
	return st
}

// WaitState blocks until the gateway reaches the wanted state or the
// context expires. It is the caller's tool for bounding how long a
// transition may remain pending.
func (g *Gateway) WaitState(ctx context.Context, want State) error {
	for {
		g.mu.RLock()
		changed := g.stateChanged
		g.mu.RUnlock()

		if g.CurrentState() == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway: waiting for state %q: %w", want, ctx.Err())
		case <-changed:
		}
	}
}

// Flatten exposes the payload normalizer as a library helper for tooling:
// same transformation the prime and delta paths use, no publishing.
func (g *Gateway) Flatten(device string, p normalize.Payload) ([]record.Record, []normalize.Warning) {
	return normalize.Flatten(device, p)
}

// Run drives the synchronization loop until the context is cancelled or an
// unrecoverable error occurs. On exit it stops ingesting, flushes pending
// publishes to all consumers, closes the bus, and releases the transport.
func (g *Gateway) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("gateway: already running")
	}
	g.running = true
	g.cancel = cancel
	g.mu.Unlock()

	// Consumers deliberately do not run under runCtx: on shutdown they
	// must keep draining until the bus closes, or pending records would
	// be lost. They terminate when their subscription ends.
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	// Subscribe internal consumers before anything is published. This is
	// the load-bearing ordering of the whole engine.
	if err := g.attachConsumers(consumerCtx); err != nil {
		g.shutdown()
		return err
	}

	g.event(runCtx, eventPrime)
	err := g.loop(runCtx)
	g.shutdown()
	return err
}

// Stop requests a graceful stop of a running gateway.
func (g *Gateway) Stop() {
	g.mu.RLock()
	cancel := g.cancel
	g.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// attachConsumers starts every configured consumer and waits until each
// one holds a bus subscription.
func (g *Gateway) attachConsumers(ctx context.Context) error {
	if len(g.consumers) == 0 {
		return nil
	}

	base := g.bus.SubscriberCount()
	for _, c := range g.consumers {
		g.wg.Add(1)
		go func(c Consumer) {
			defer g.wg.Done()
			if err := c.Run(ctx, g.bus); err != nil && ctx.Err() == nil {
				g.logger.Error("consumer stopped", "error", err)
			}
		}(c)
	}

	want := base + len(g.consumers)
	deadline := time.Now().Add(consumerAttachTimeout)
	for g.bus.SubscriberCount() < want {
		if time.Now().After(deadline) {
			return fmt.Errorf("gateway: consumers failed to attach within %v", consumerAttachTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// loop is the state machine driver. Each iteration performs the work of
// the current state and fires the transition its outcome demands.
func (g *Gateway) loop(ctx context.Context) error {
	attempts := 0
	delay := g.retry.InitialDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		switch g.CurrentState() {
		case StatePriming:
			if err := g.prime(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				attempts++
				if g.retry.MaxAttempts > 0 && attempts >= g.retry.MaxAttempts {
					return fmt.Errorf("%w: after %d attempts: %w", ErrPrimeExhausted, attempts, err)
				}
				g.logger.Warn("prime failed, retrying",
					"attempt", attempts, "delay", delay.String(), "error", err)
				g.sleep(ctx, delay)
				delay = min(delay*2, g.retry.MaxDelay)
				continue
			}
			attempts = 0
			delay = g.retry.InitialDelay
			g.event(ctx, eventPrimed)

		case StateSubscribing:
			if err := g.armTransport(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				g.setLastErr(fmt.Errorf("%w: %w", ErrTransportDown, err))
				g.logger.Warn("transport subscription failed", "error", err)
				g.event(ctx, eventDrop)
				continue
			}
			g.event(ctx, eventConfirmed)

		case StateLive:
			g.consumeDeltas(ctx)
			if ctx.Err() != nil {
				return nil
			}
			g.event(ctx, eventDrop)

		case StateReconnecting:
			g.sleep(ctx, g.reconnect)
			if ctx.Err() != nil {
				return nil
			}
			// The push channel has no replay: a fresh prime is mandatory.
			// Frames queued while disconnected predate the snapshot about to
			// be fetched and would regress the store under last-write-wins.
			g.drainPendingFrames()
			g.event(ctx, eventReprime)

		default:
			return nil
		}
	}
}

// shutdown finalizes a stopping gateway: transition to stopped, release the
// transport, close the bus, and wait for consumers to drain every pending
// record. Publishing has already ceased when this runs.
func (g *Gateway) shutdown() {
	g.event(context.Background(), eventStop)

	if err := g.transport.Close(); err != nil {
		g.logger.Warn("transport close failed", "error", err)
	}

	g.bus.Close()
	g.wg.Wait()

	g.mu.Lock()
	g.running = false
	g.cancel = nil
	g.mu.Unlock()

	g.logger.Info("gateway stopped", "published", g.bus.Seq())
}

// prime pulls the full snapshot and publishes it. The activity snapshot is
// best-effort: its failure degrades the prime, never fails it.
func (g *Gateway) prime(ctx context.Context) error {
	devices := g.deviceList()

	params, err := g.rest.PrimeParameters(ctx, devices)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrSnapshot, err)
		g.setLastErr(wrapped)
		return wrapped
	}

	var activity map[string]normalize.Payload
	if g.activity {
		activity, err = g.rest.PrimeActivity(ctx, devices)
		if err != nil {
			g.logger.Warn("activity prime failed, continuing without", "error", err)
			activity = nil
		}
	}

	published := 0
	for _, device := range devices {
		n, err := g.publishPayload(device, params[device])
		if err != nil {
			return err
		}
		published += n

		n, err = g.publishPayload(device, activity[device])
		if err != nil {
			return err
		}
		published += n
	}

	g.setLastErr(nil)
	g.logger.Info("prime complete", "devices", len(devices), "records", published)
	return nil
}

// armTransport opens the push connection for a fresh session and requests
// delta delivery for the current device set.
func (g *Gateway) armTransport(ctx context.Context) error {
	devices := g.deviceList()
	session := Session{Token: uuid.NewString(), Devices: devices}

	if err := g.transport.Open(ctx, session); err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}

	confirmed, err := g.transport.SubscribeDevices(ctx, devices)
	if err != nil {
		return fmt.Errorf("subscribing devices: %w", err)
	}

	g.mu.Lock()
	g.session = session
	g.subscribed = make(map[string]struct{}, len(confirmed))
	requested := g.devices
	for _, id := range confirmed {
		if _, ok := requested[id]; !ok {
			// Device-scope fatal: discard the rogue confirmation, keep
			// the rest of the session alive.
			g.logger.Error("subscription confirmed for unrequested device",
				"device", id, "error", ErrProtocolInvariant)
			continue
		}
		g.subscribed[id] = struct{}{}
	}
	missing := len(requested) - len(g.subscribed)
	g.mu.Unlock()

	if missing > 0 {
		g.logger.Warn("some devices unconfirmed", "missing", missing)
	}

	g.logger.Info("push subscription confirmed",
		"session", session.Token, "devices", len(confirmed))
	return nil
}

// consumeDeltas ingests transport events until a disconnect or cancellation.
func (g *Gateway) consumeDeltas(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-g.transport.Events():
			if !ok {
				g.setLastErr(fmt.Errorf("%w: event stream closed", ErrTransportDown))
				return
			}

			switch ev.Kind {
			case EventConnected:
				g.logger.Debug("transport connected")

			case EventFrame:
				if !g.isSubscribed(ev.Device) {
					g.logger.Error("frame for unsubscribed device dropped",
						"device", ev.Device, "error", ErrProtocolInvariant)
					continue
				}
				if _, err := g.publishPayload(ev.Device, ev.Payload); err != nil {
					g.logger.Error("delta publish failed", "device", ev.Device, "error", err)
					return
				}

			case EventDisconnected:
				g.setLastErr(fmt.Errorf("%w: %w", ErrTransportDown, ev.Err))
				g.logger.Warn("transport disconnected", "reason", ev.Err)
				return
			}
		}
	}
}

// drainPendingFrames discards events buffered in the transport channel.
// It runs between a disconnect and the re-prime, so any frame still
// queued is older than the snapshot the prime is about to fetch.
func (g *Gateway) drainPendingFrames() {
	discarded := 0
	for {
		select {
		case ev, ok := <-g.transport.Events():
			if !ok {
				if discarded > 0 {
					g.logger.Debug("stale frames discarded before re-prime", "count", discarded)
				}
				return
			}
			if ev.Kind == EventFrame {
				discarded++
			}
		default:
			if discarded > 0 {
				g.logger.Debug("stale frames discarded before re-prime", "count", discarded)
			}
			return
		}
	}
}

// publishPayload flattens one raw payload and publishes every record.
// Normalization warnings are diagnostic only and never abort the batch.
func (g *Gateway) publishPayload(device string, p normalize.Payload) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	records, warnings := normalize.Flatten(device, p)
	for _, w := range warnings {
		g.logger.Warn("payload entry skipped", "device", device, "detail", w.String())
	}
	if len(warnings) > 0 {
		g.mu.Lock()
		g.warnings += uint64(len(warnings))
		g.mu.Unlock()
	}

	for i, r := range records {
		if _, err := g.bus.Publish(r); err != nil {
			return i, fmt.Errorf("publishing record %s: %w", r.Key(), err)
		}
	}
	return len(records), nil
}

// EnsureSubscribed idempotently extends the synchronized device set.
// Devices already requested are ignored. When the gateway is live, new
// devices are primed and armed immediately; otherwise they are picked up
// by the next prime cycle.
func (g *Gateway) EnsureSubscribed(ctx context.Context, deviceIDs []string) error {
	live := g.CurrentState() == StateLive

	g.mu.Lock()
	var added []string
	for _, id := range deviceIDs {
		if _, ok := g.devices[id]; ok {
			continue
		}
		g.devices[id] = struct{}{}
		added = append(added, id)
	}
	g.mu.Unlock()

	if len(added) == 0 {
		return nil
	}
	g.logger.Info("device set extended", "added", added)

	if !live {
		return nil
	}

	// Prime the new devices before arming their deltas, mirroring the
	// startup order within this smaller scope.
	params, err := g.rest.PrimeParameters(ctx, added)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	for _, device := range added {
		if _, err := g.publishPayload(device, params[device]); err != nil {
			return err
		}
	}

	confirmed, err := g.transport.SubscribeDevices(ctx, added)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportDown, err)
	}

	g.mu.Lock()
	for _, id := range confirmed {
		if _, ok := g.devices[id]; ok {
			g.subscribed[id] = struct{}{}
		}
	}
	g.mu.Unlock()
	return nil
}

// deviceList returns the requested devices in stable order.
func (g *Gateway) deviceList() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.devices)
}

// isSubscribed reports whether deltas are expected for a device.
func (g *Gateway) isSubscribed(device string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.subscribed[device]
	return ok
}

// setLastErr records the most recent failure for Status.
func (g *Gateway) setLastErr(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
}

// sleep waits for d or until the context is cancelled.
func (g *Gateway) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// sortedKeys returns the keys of a string set in sorted order.
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
