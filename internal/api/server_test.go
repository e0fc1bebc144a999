package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-device/internal/auth"
	"github.com/nerrad567/gray-logic-device/internal/device"
	"github.com/nerrad567/gray-logic-device/internal/element"
	"github.com/nerrad567/gray-logic-device/internal/elements/virtual"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-device/internal/network"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/protocol/mqttlayer"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

type fakeNet struct {
	network.Base
}

func newFakeNet() *fakeNet {
	n := &fakeNet{}
	n.Base.Init("eth0", network.IntfTypeEthernet)
	return n
}

func (n *fakeNet) Setup() error              { return nil }
func (n *fakeNet) Disable()                  {}
func (n *fakeNet) IsReady() bool             { return true }
func (n *fakeNet) MacAddr() ([6]byte, error) { return [6]byte{0x02, 0, 0, 0x12, 0x34, 0x56}, nil }

type fixture struct {
	srv    *Server
	dev    *device.Device
	mqtt   *mqttlayer.Layer
	config *storage.MemoryConfig
}

type fixtureOpts struct {
	seedMQTT     bool
	passwordHash string
	metrics      bool
}

// newFixture builds a started device with two relays and an MQTT layer
// whose broker is unreachable.
func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	elements := element.NewRegistry()
	for _, n := range []int32{0, 1} {
		if _, err := elements.Add(virtual.NewRelay(n)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	netMgr := network.NewManager()
	netMgr.Add(newFakeNet())
	protos := protocol.NewRegistry()
	cfg := storage.NewMemoryConfig()
	if opts.seedMQTT {
		s := mqttlayer.Settings{Server: "broker.local", Port: -1, Enabled: true}
		if err := s.Save(cfg); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	dev := device.New(device.Config{Name: "api-test", SoftwareVersion: "test"}, elements, netMgr, protos, cfg, storage.NewMemoryState())
	layer := mqttlayer.New(netMgr, dev)
	layer.SetDialer(func(mqtt.Options) (mqttlayer.Conn, error) { return nil, errors.New("offline") })
	if err := protos.Add(layer); err != nil {
		t.Fatalf("protocols.Add() error = %v", err)
	}
	if err := dev.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	deps := Deps{
		Config: config.APIConfig{
			Host:         "127.0.0.1",
			Timeouts:     config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			PasswordHash: opts.passwordHash,
		},
		Logger:  logging.Discard(),
		Device:  dev,
		Version: "test",
	}
	if opts.metrics {
		m, err := metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		deps.Metrics = m
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{srv: srv, dev: dev, mqtt: layer, config: cfg}
}

// run starts the device main loop for the duration of the test.
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dev.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for f.dev.Exec(ctx, func() error { return nil }) != nil {
		if time.Now().After(deadline) {
			t.Fatal("device loop did not start")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) do(method, path, body string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for _, fn := range setup {
		fn(req)
	}
	w := httptest.NewRecorder()
	f.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Read Endpoints ────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	w := f.do(http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	if id := f.do(http.MethodGet, "/api/v1/health", "").Header().Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", id)
	}
	w := f.do(http.MethodGet, "/api/v1/health", "", func(r *http.Request) {
		r.Header.Set("X-Request-ID", "client-123")
	})
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	w := f.do(http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}

	var snap device.Snapshot
	decode(t, w, &snap)
	if snap.Name != "api-test" || snap.GUID != f.dev.GUID() {
		t.Errorf("snapshot identity = %q/%q", snap.Name, snap.GUID)
	}
	if snap.Hostname != "SUPLA-123456" {
		t.Errorf("hostname = %q, want SUPLA-123456", snap.Hostname)
	}
	// No MQTT server stored, so the device waits in config mode.
	if snap.Mode != network.ModeConfig.String() || snap.Status != device.StatusMissingCredentials.String() {
		t.Errorf("mode/status = %s/%s", snap.Mode, snap.Status)
	}
	if len(snap.Protocols) != 1 || snap.Protocols[0].Name != mqttlayer.Name {
		t.Errorf("protocols = %+v", snap.Protocols)
	}
}

func TestListChannels(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.dev.Elements().ByChannelNumber(1).Channel().SetBool(true)

	w := f.do(http.MethodGet, "/api/v1/channels", "")
	var resp struct {
		Channels []ChannelView `json:"channels"`
		Count    int           `json:"count"`
	}
	decode(t, w, &resp)

	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	ch := resp.Channels[1]
	if ch.Number != 1 || ch.Value != "0100000000000000" || !ch.UpdatePending {
		t.Errorf("channel 1 = %+v", ch)
	}
	if resp.Channels[0].Caption != "Relay" {
		t.Errorf("caption = %q, want Relay", resp.Channels[0].Caption)
	}
}

func TestGetMQTT_HidesPassword(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	s := mqttlayer.Settings{Server: "broker", Port: 1884, User: "u", Pass: "secret", Auth: true, Enabled: true}
	if err := s.Save(f.config); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := f.mqtt.OnLoadConfig(f.config); err != nil {
		t.Fatalf("OnLoadConfig() error = %v", err)
	}

	w := f.do(http.MethodGet, "/api/v1/protocols/mqtt", "")
	if strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("response leaks password: %s", w.Body.String())
	}
	var got MQTTSettings
	decode(t, w, &got)
	if got.Server != "broker" || got.Port != 1884 || !got.PasswordSet {
		t.Errorf("settings = %+v", got)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestAuthMiddleware(t *testing.T) {
	hash, err := auth.HashPasswordWith("s3cret", auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	if err != nil {
		t.Fatalf("HashPasswordWith() error = %v", err)
	}
	withAuth := func(user, pass string) func(*http.Request) {
		return func(r *http.Request) { r.SetBasicAuth(user, pass) }
	}

	tests := []struct {
		name     string
		opts     fixtureOpts
		setup    []func(*http.Request)
		wantCode int
	}{
		// Requests that pass auth reach the handler, which reports the
		// stopped main loop.
		{"no hash, config mode", fixtureOpts{}, nil, http.StatusServiceUnavailable},
		{"no hash, normal mode", fixtureOpts{seedMQTT: true}, nil, http.StatusForbidden},
		{"missing credentials", fixtureOpts{passwordHash: hash}, nil, http.StatusUnauthorized},
		{"wrong password", fixtureOpts{passwordHash: hash}, []func(*http.Request){withAuth(AdminUser, "nope")}, http.StatusUnauthorized},
		{"wrong user", fixtureOpts{passwordHash: hash}, []func(*http.Request){withAuth("root", "s3cret")}, http.StatusUnauthorized},
		{"valid", fixtureOpts{passwordHash: hash}, []func(*http.Request){withAuth(AdminUser, "s3cret")}, http.StatusServiceUnavailable},
		{"unusable hash", fixtureOpts{passwordHash: "plain"}, []func(*http.Request){withAuth(AdminUser, "s3cret")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			w := f.do(http.MethodPost, "/api/v1/mode", `{"mode":"config"}`, tt.setup...)
			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate challenge")
			}
		})
	}
}

// ─── Provisioning ──────────────────────────────────────────────────

func TestPutMQTT(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.run(t)

	w := f.do(http.MethodPut, "/api/v1/protocols/mqtt",
		`{"server":"broker.lan","port":-1,"username":"dev","password":"pw","qos":1,"auth":true,"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}

	var snap device.Snapshot
	decode(t, w, &snap)
	if snap.Mode != network.ModeNormal.String() {
		t.Errorf("mode = %s, want normal after credentials were stored", snap.Mode)
	}
	if got := f.mqtt.Settings(); got.Server != "broker.lan" || got.User != "dev" || got.QoS != 1 {
		t.Errorf("layer settings = %+v", got)
	}
	if server, err := f.config.GetString(mqttlayer.KeyServer); err != nil || server != "broker.lan" {
		t.Errorf("stored server = %q, %v", server, err)
	}
	if f.config.Commits() == 0 {
		t.Error("config was not committed")
	}
}

func TestPutMQTT_KeepsPassword(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	s := mqttlayer.Settings{Server: "broker", Port: 1883, User: "dev", Pass: "secret", Auth: true, Enabled: true}
	if err := s.Save(f.config); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := f.mqtt.OnLoadConfig(f.config); err != nil {
		t.Fatalf("OnLoadConfig() error = %v", err)
	}
	f.run(t)

	w := f.do(http.MethodPut, "/api/v1/protocols/mqtt", `{"server":"broker2","port":1883,"username":"dev","auth":true,"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", w.Code, w.Body.String())
	}
	if pass, err := f.config.GetString(mqttlayer.KeyPass); err != nil || pass != "secret" {
		t.Errorf("stored password = %q, %v", pass, err)
	}

	// A new username needs its own password.
	w = f.do(http.MethodPut, "/api/v1/protocols/mqtt", `{"server":"broker2","username":"other","auth":true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400 without a password for a new user", w.Code)
	}
}

func TestPutMQTT_Rejects(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.run(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"bad json", `{"server":`, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty server", `{"server":"","enabled":true}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing credentials", `{"server":"b","auth":true}`, http.StatusBadRequest, ErrCodeValidation},
		{"bad qos", `{"server":"b","qos":3}`, http.StatusBadRequest, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, "/api/v1/protocols/mqtt", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, tt.wantCode)
			}
			var e Error
			decode(t, w, &e)
			if e.Code != tt.wantErr {
				t.Errorf("error code = %q, want %q", e.Code, tt.wantErr)
			}
		})
	}
	if _, err := f.config.GetString(mqttlayer.KeyServer); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rejected settings were stored: %v", err)
	}
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.run(t)

	tests := []struct {
		body     string
		wantCode int
		wantMode network.Mode
	}{
		{`{"mode":"bogus"}`, http.StatusBadRequest, network.ModeConfig},
		// Normal mode needs a selectable protocol.
		{`{"mode":"normal"}`, http.StatusConflict, network.ModeConfig},
		{`{"mode":"config"}`, http.StatusOK, network.ModeConfig},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/mode", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if got := f.dev.Network().Mode(); got != tt.wantMode {
				t.Errorf("mode = %s, want %s", got, tt.wantMode)
			}
		})
	}
}

// ─── Metrics & WebSocket ───────────────────────────────────────────

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, fixtureOpts{metrics: true})
	f.do(http.MethodGet, "/api/v1/health", "")

	w := f.do(http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "graylogic_device_api_requests_total") || !strings.Contains(body, `route="/api/v1/health"`) {
		t.Errorf("metrics output missing api request series:\n%s", body)
	}
}

func TestMetricsEndpoint_DisabledWithoutCollector(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if w := f.do(http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("metrics code = %d, want 404", w.Code)
	}
}

func TestWebSocket_StatusEvents(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ts := httptest.NewServer(f.srv.buildRouter())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.hub.Run(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() WSMessage {
		t.Helper()
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	first := read()
	if first.EventType != EventStatusChanged {
		t.Fatalf("first message = %+v, want status event", first)
	}
	if p, _ := first.Payload.(map[string]any); p["status"] != device.StatusMissingCredentials.String() { //nolint:errcheck // checked via comparison
		t.Errorf("initial status payload = %v", first.Payload)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if pong := read(); pong.Type != WSTypePong || pong.ID != "1" {
		t.Errorf("ping reply = %+v", pong)
	}

	f.srv.broadcastStatus(device.StatusRegistered)
	ev := read()
	if p, _ := ev.Payload.(map[string]any); ev.Type != WSTypeEvent || p["status"] != "registered" { //nolint:errcheck // checked via comparison
		t.Errorf("broadcast = %+v", ev)
	}
	if f.srv.hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", f.srv.hub.ClientCount())
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without device should fail")
	}
}
