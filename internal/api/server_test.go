package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-sync-core/internal/gateway"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-sync-core/internal/record"
	"github.com/nerrad567/gray-sync-core/internal/store"
)

// stubSync serves canned gateway statuses and records subscribe calls.
type stubSync struct {
	status       gateway.Status
	subscribeErr error
	subscribed   []string
}

func (s *stubSync) Status() gateway.Status { return s.status }

func (s *stubSync) EnsureSubscribed(_ context.Context, devices []string) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribed = append(s.subscribed, devices...)
	return nil
}

// testServer creates a Server over a lightweight store seeded by the caller.
func testServer(t *testing.T, sync SyncController) (*Server, *store.Store) {
	t.Helper()

	st := store.NewLightweight()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         "test-secret-key-at-least-32-characters-long",
				AccessTokenTTL: 15,
			},
		},
		Catalog: config.CatalogConfig{DefaultLang: "en"},
		Logger:  log,
		Store:   st,
		Sync:    sync,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests; production wires it through the gateway.
	srv.hub = NewHub(srv.wsCfg, log)

	return srv, st
}

// seedSlot applies a record to the store with the given sequence.
func seedSlot(st *store.Store, device, pool, channel string, index int, v record.Value, seq uint64) {
	st.Apply(record.Record{
		Device:  device,
		Pool:    pool,
		Channel: channel,
		Index:   index,
		Value:   v,
		Meta:    map[string]any{},
		Seq:     seq,
	})
}

// loginToken logs in as the dev user and returns the bearer token.
func loginToken(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	body := bytes.NewBufferString(`{"username":"admin","password":"admin"}`)
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("login returned empty access token")
	}
	return out.AccessToken
}

// authedRequest performs a request with a bearer token and decodes the body.
func authedRequest(t *testing.T, ts *httptest.Server, method, path, token string, out any) int {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("health version = %v, want test", body["version"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	body := bytes.NewBufferString(`{"username":"admin","password":"wrong"}`)
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	// No Authorization header
	resp, err := http.Get(ts.URL + "/api/v1/devices/ctl-1/values")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", resp.StatusCode)
	}

	// Garbage token
	status := authedRequest(t, ts, http.MethodGet, "/api/v1/devices/ctl-1/values", "not-a-jwt", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", status)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	sync := &stubSync{
		status: gateway.Status{
			State:      gateway.StateLive,
			Devices:    []string{"ctl-1", "ctl-2"},
			Subscribed: []string{"ctl-1", "ctl-2"},
			Published:  42,
		},
	}
	srv, _ := testServer(t, sync)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	var status gateway.Status
	code := authedRequest(t, ts, http.MethodGet, "/api/v1/sync/status", token, &status)
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if status.State != gateway.StateLive {
		t.Errorf("state = %q, want live", status.State)
	}
	if status.Published != 42 {
		t.Errorf("published = %d, want 42", status.Published)
	}
}

func TestSyncStatusWithoutGateway(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	code := authedRequest(t, ts, http.MethodGet, "/api/v1/sync/status", token, nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want 503", code)
	}
}

func TestSubscribeDevice(t *testing.T) {
	sync := &stubSync{}
	srv, _ := testServer(t, sync)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	var body map[string]any
	code := authedRequest(t, ts, http.MethodPost, "/api/v1/sync/devices/ctl-9/subscribe", token, &body)
	if code != http.StatusOK {
		t.Fatalf("subscribe code = %d, want 200", code)
	}
	if body["device"] != "ctl-9" {
		t.Errorf("device = %v, want ctl-9", body["device"])
	}
	if len(sync.subscribed) != 1 || sync.subscribed[0] != "ctl-9" {
		t.Errorf("gateway saw subscribes %v, want [ctl-9]", sync.subscribed)
	}
}

func TestSubscribeDeviceConflict(t *testing.T) {
	sync := &stubSync{subscribeErr: fmt.Errorf("gateway is not live")}
	srv, _ := testServer(t, sync)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	code := authedRequest(t, ts, http.MethodPost, "/api/v1/sync/devices/ctl-9/subscribe", token, nil)
	if code != http.StatusConflict {
		t.Fatalf("subscribe code = %d, want 409", code)
	}
}

func TestDeviceValues(t *testing.T) {
	srv, st := testServer(t, nil)
	seedSlot(st, "ctl-1", "P4", "v", 1, record.Float(21.5), 1)
	seedSlot(st, "ctl-1", "P4", "v", 2, record.Int(7), 2)
	seedSlot(st, "ctl-2", "S1", "mode", 0, record.String("auto"), 3)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	var body struct {
		Device string                     `json:"device"`
		Count  int                        `json:"count"`
		Values map[string]json.RawMessage `json:"values"`
	}
	code := authedRequest(t, ts, http.MethodGet, "/api/v1/devices/ctl-1/values", token, &body)
	if code != http.StatusOK {
		t.Fatalf("values code = %d, want 200", code)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	if _, ok := body.Values["P4.v1"]; !ok {
		t.Errorf("values missing canonical key P4.v1: %v", body.Values)
	}
	if _, ok := body.Values["P4.v2"]; !ok {
		t.Errorf("values missing canonical key P4.v2: %v", body.Values)
	}
}

func TestDeviceValueByKey(t *testing.T) {
	srv, st := testServer(t, nil)
	seedSlot(st, "ctl-1", "P4", "v", 1, record.Float(21.5), 1)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	var d store.Description
	code := authedRequest(t, ts, http.MethodGet, "/api/v1/devices/ctl-1/values/P4.v1", token, &d)
	if code != http.StatusOK {
		t.Fatalf("value code = %d, want 200", code)
	}
	if !d.Known {
		t.Error("description not marked known")
	}
	if got, ok := d.Value.Float64(); !ok || got != 21.5 {
		t.Errorf("value = %v ok=%v, want 21.5", got, ok)
	}

	// Unknown slot
	code = authedRequest(t, ts, http.MethodGet, "/api/v1/devices/ctl-1/values/P4.v9", token, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown slot code = %d, want 404", code)
	}

	// Malformed key
	code = authedRequest(t, ts, http.MethodGet, "/api/v1/devices/ctl-1/values/nodot", token, nil)
	if code != http.StatusBadRequest {
		t.Errorf("malformed key code = %d, want 400", code)
	}
}

func TestDeviceMenuWithoutCatalog(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	var body struct {
		Device  string              `json:"device"`
		Entries []store.Description `json:"entries"`
	}
	code := authedRequest(t, ts, http.MethodGet, "/api/v1/devices/ctl-1/menu", token, &body)
	if code != http.StatusOK {
		t.Fatalf("menu code = %d, want 200", code)
	}
	if body.Entries == nil || len(body.Entries) != 0 {
		t.Errorf("entries = %v, want empty list", body.Entries)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	sync := &stubSync{
		status: gateway.Status{
			State:     gateway.StateLive,
			Devices:   []string{"ctl-1"},
			Published: 5,
			Warnings:  1,
		},
	}
	srv, st := testServer(t, sync)
	seedSlot(st, "ctl-1", "P4", "v", 1, record.Float(1), 1)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics code = %d, want 200", resp.StatusCode)
	}

	var metrics SystemMetrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.Store.Slots != 1 {
		t.Errorf("store slots = %d, want 1", metrics.Store.Slots)
	}
	if metrics.Sync == nil || metrics.Sync.Published != 5 {
		t.Errorf("sync metrics = %+v, want published 5", metrics.Sync)
	}
}

func TestWebSocketRelay(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	token := loginToken(t, ts)

	// Obtain a single-use ticket
	var ticketBody struct {
		Ticket string `json:"ticket"`
	}
	code := authedRequest(t, ts, http.MethodPost, "/api/v1/auth/ws-ticket", token, &ticketBody)
	if code != http.StatusOK {
		t.Fatalf("ws-ticket code = %d, want 200", code)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticketBody.Ticket
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	//nolint:errcheck // Test deadline; read errors surface below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Subscribe to the global updates channel
	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelUpdates}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("ack type = %q, want response", ack.Type)
	}

	// Broadcast a record through the hub as the bus consumer would
	srv.hub.broadcastRecord(record.Record{
		Device:  "ctl-1",
		Pool:    "P4",
		Channel: "v",
		Index:   1,
		Value:   record.Float(21.5),
		Meta:    map[string]any{},
		Seq:     9,
	})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != "slot.updated" {
		t.Fatalf("event = %+v, want slot.updated event", event)
	}

	payload, ok := event.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want object", event.Payload)
	}
	if payload["device"] != "ctl-1" {
		t.Errorf("payload device = %v, want ctl-1", payload["device"])
	}
	if payload["seq"] != float64(9) {
		t.Errorf("payload seq = %v, want 9", payload["seq"])
	}
}

func TestWebSocketRejectsBadTicket(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial with bogus ticket succeeded, want failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}
}

func TestTicketIsSingleUse(t *testing.T) {
	srv, _ := testServer(t, nil)

	srv.tickets.tickets["once"] = ticketEntry{expiresAt: time.Now().Add(time.Minute)}

	if _, ok := srv.validateTicket("once"); !ok {
		t.Fatal("first validation failed")
	}
	if _, ok := srv.validateTicket("once"); ok {
		t.Fatal("second validation succeeded, want single-use")
	}
}

func TestExpiredTicketRejected(t *testing.T) {
	srv, _ := testServer(t, nil)

	srv.tickets.tickets["stale"] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}

	if _, ok := srv.validateTicket("stale"); ok {
		t.Fatal("expired ticket accepted")
	}
}
