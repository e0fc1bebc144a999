package mqttlayer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-device/internal/proto"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/storage"
)

type fakeIdentity struct {
	hostname string
	rootCA   []byte
	noSSL    bool
}

func (f fakeIdentity) Hostname() string { return f.hostname }
func (f fakeIdentity) RootCA() []byte   { return f.rootCA }
func (f fakeIdentity) SSLEnabled() bool { return !f.noSSL }

type fakePending struct {
	done bool
	err  error
}

func (p *fakePending) Done() bool { return p.done }
func (p *fakePending) Err() error { return p.err }

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeConn struct {
	opts      mqtt.Options
	pending   *fakePending
	connected bool
	closed    bool
	handlers  map[string]mqtt.MessageHandler
	published []published
}

func (c *fakeConn) Start() Pending    { return c.pending }
func (c *fakeConn) IsConnected() bool { return c.connected && c.pending.done && c.pending.err == nil }
func (c *fakeConn) Close() error      { c.closed = true; return nil }
func (c *fakeConn) Track(topic string, _ byte, h mqtt.MessageHandler) error {
	c.handlers[topic] = h
	return nil
}
func (c *fakeConn) PublishAsync(topic string, payload []byte, _ byte, retained bool) error {
	c.published = append(c.published, published{topic, payload, retained})
	return nil
}

// deliver pushes a message through the tracked wildcard handler.
func (c *fakeConn) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	for _, h := range c.handlers {
		_ = h(topic, []byte(payload))
		return
	}
	t.Fatal("no handler tracked")
}

func (c *fakeConn) last(t *testing.T) published {
	t.Helper()
	if len(c.published) == 0 {
		t.Fatal("nothing published")
	}
	return c.published[len(c.published)-1]
}

type fakeDispatcher struct {
	values      []proto.NewValue
	reply       proto.ReplyAction
	current     [proto.ChannelValueSize]byte
	configs     []proto.ChannelConfig
	configCode  proto.ResultCode
	acks        []proto.SetChannelConfigResult
	finished    []int32
	calcfgs     []proto.CalCfgRequest
	masks       []uint64
	stateCalled int
}

func (d *fakeDispatcher) HandleNewValue(v *proto.NewValue) proto.ReplyAction {
	d.values = append(d.values, *v)
	return d.reply
}
func (d *fakeDispatcher) FillNewValue(v *proto.NewValue) { v.Value = d.current }
func (d *fakeDispatcher) HandleGetChannelState(st *proto.ChannelState) {
	d.stateCalled++
	st.Fields = proto.ChannelStateFieldIPv4 | proto.ChannelStateFieldMAC
	st.IPv4 = [4]byte{192, 168, 1, 20}
	st.MAC = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
}
func (d *fakeDispatcher) HandleCalCfg(req *proto.CalCfgRequest) proto.CalCfgResult {
	d.calcfgs = append(d.calcfgs, *req)
	return proto.CalCfgResultDone
}
func (d *fakeDispatcher) HandleChannelConfig(cfg *proto.ChannelConfig, local bool) proto.ResultCode {
	d.configs = append(d.configs, *cfg)
	return d.configCode
}
func (d *fakeDispatcher) HandleSetChannelConfigResult(res *proto.SetChannelConfigResult) {
	d.acks = append(d.acks, *res)
}
func (d *fakeDispatcher) HandleChannelConfigFinished(n int32)  { d.finished = append(d.finished, n) }
func (d *fakeDispatcher) HandleDeviceConfigChange(mask uint64) { d.masks = append(d.masks, mask) }

type harness struct {
	layer *Layer
	disp  *fakeDispatcher
	conns []*fakeConn
	now   time.Time
}

func newHarness(t *testing.T, s Settings) *harness {
	t.Helper()
	h := &harness{disp: &fakeDispatcher{reply: proto.ReplySuccess, configCode: proto.ResultCodeTrue}, now: time.Unix(1000, 0)}
	h.layer = New(fakeIdentity{hostname: "SUPLA-DDEEFF", rootCA: []byte("ca")}, h.disp)
	h.layer.SetDialer(func(opts mqtt.Options) (Conn, error) {
		c := &fakeConn{opts: opts, pending: &fakePending{}, handlers: map[string]mqtt.MessageHandler{}}
		h.conns = append(h.conns, c)
		return c, nil
	})

	cfg := storage.NewMemoryConfig()
	if err := s.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := h.layer.OnLoadConfig(cfg); err != nil {
		t.Fatalf("OnLoadConfig() error = %v", err)
	}
	return h
}

func (h *harness) conn() *fakeConn { return h.conns[len(h.conns)-1] }

// register drives the layer through a successful connection.
func (h *harness) register(t *testing.T) *fakeConn {
	t.Helper()
	if got := h.layer.Iterate(h.now); got != protocol.LinkConnecting {
		t.Fatalf("Iterate() = %v, want connecting", got)
	}
	c := h.conn()
	c.pending.done = true
	c.connected = true
	if got := h.layer.Iterate(h.now); got != protocol.LinkRegistered {
		t.Fatalf("Iterate() = %v, want registered", got)
	}
	return c
}

func validSettings() Settings {
	s := DefaultSettings()
	s.Server = "broker.local"
	s.User = "dev"
	s.Pass = "secret"
	return s
}

// =============================================================================
// Settings
// =============================================================================

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(storage.NewMemoryConfig())
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("LoadSettings() = %+v, want defaults", s)
	}
	if !s.Auth || !s.Enabled || s.Port != -1 || s.QoS != 0 {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	cfg := storage.NewMemoryConfig()
	want := Settings{Server: "mqtt.example.org", Port: 1884, User: "u", Pass: "p", QoS: 1, TLS: true, Auth: true, Retain: true, Enabled: false}
	if err := want.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := LoadSettings(cfg)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if got != want {
		t.Errorf("LoadSettings() = %+v, want %+v", got, want)
	}
}

func TestLoadSettings_TypeMismatch(t *testing.T) {
	cfg := storage.NewMemoryConfig()
	_ = cfg.SetString(KeyPort, "1883")
	if _, err := LoadSettings(cfg); !errors.Is(err, storage.ErrTypeMismatch) {
		t.Errorf("LoadSettings() error = %v, want ErrTypeMismatch", err)
	}
}

func TestSettings_ResolvedPort(t *testing.T) {
	tests := []struct {
		port int32
		tls  bool
		want int
	}{
		{-1, false, 1883},
		{-1, true, 8883},
		{1999, false, 1999},
		{1999, true, 1999},
	}
	for _, tt := range tests {
		s := Settings{Port: tt.port, TLS: tt.tls}
		if got := s.ResolvedPort(); got != tt.want {
			t.Errorf("ResolvedPort(%d, tls=%v) = %d, want %d", tt.port, tt.tls, got, tt.want)
		}
	}
}

func TestSettings_Verify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(*Settings) {}, false},
		{"no server", func(s *Settings) { s.Server = "" }, true},
		{"port zero", func(s *Settings) { s.Port = 0 }, true},
		{"port too high", func(s *Settings) { s.Port = 65536 }, true},
		{"port max", func(s *Settings) { s.Port = 65535 }, false},
		{"qos 3", func(s *Settings) { s.QoS = 3 }, true},
		{"auth without user", func(s *Settings) { s.User = "" }, true},
		{"auth without pass", func(s *Settings) { s.Pass = "" }, true},
		{"no auth no creds", func(s *Settings) { s.Auth = false; s.User = ""; s.Pass = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Verify()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, protocol.ErrInvalidConfig) {
				t.Errorf("Verify() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// =============================================================================
// Session
// =============================================================================

func TestLayer_ContractBasics(t *testing.T) {
	h := newHarness(t, validSettings())
	l := h.layer

	if l.Name() != "mqtt" {
		t.Errorf("Name() = %q", l.Name())
	}
	if !l.IsEnabled() {
		t.Error("IsEnabled() = false")
	}
	if err := l.VerifyConfig(); err != nil {
		t.Errorf("VerifyConfig() error = %v", err)
	}
	if l.ConnectionFailTime() != 60*time.Second {
		t.Errorf("ConnectionFailTime() = %v, want 60s", l.ConnectionFailTime())
	}
	if l.IsNetworkRestartRequested() {
		t.Error("fresh layer requested a network restart")
	}
}

func TestLayer_DisabledStaysIdle(t *testing.T) {
	s := validSettings()
	s.Enabled = false
	h := newHarness(t, s)

	if got := h.layer.Iterate(h.now); got != protocol.LinkIdle {
		t.Errorf("Iterate() = %v, want idle", got)
	}
	if len(h.conns) != 0 {
		t.Error("disabled layer dialled the broker")
	}
}

func TestLayer_ConnectOptions(t *testing.T) {
	s := validSettings()
	s.TLS = true
	s.QoS = 1
	h := newHarness(t, s)
	h.layer.Iterate(h.now)

	opts := h.conn().opts
	if opts.Server != "broker.local" || opts.Port != 8883 || !opts.TLS {
		t.Errorf("opts = %+v", opts)
	}
	if opts.ClientID != "SUPLA-DDEEFF" || string(opts.RootCA) != "ca" {
		t.Errorf("identity not applied: %+v", opts)
	}
	if opts.Username != "dev" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if opts.StatusTopic != "supla/devices/supla-ddeeff/status" {
		t.Errorf("StatusTopic = %q", opts.StatusTopic)
	}
	if len(h.conn().handlers) != 4 {
		t.Errorf("tracked %d topics, want 4", len(h.conn().handlers))
	}
}

func TestLayer_SSLToggle(t *testing.T) {
	tests := []struct {
		name     string
		tls      bool
		noSSL    bool
		wantTLS  bool
		wantPort int
		wantCA   string
	}{
		{"tls with ssl on", true, false, true, DefaultTLSPort, "ca"},
		{"tls with ssl off", true, true, false, DefaultPort, ""},
		{"plain with ssl on", false, false, false, DefaultPort, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			s.TLS = tt.tls
			s.Port = -1
			h := newHarness(t, s)
			h.layer.identity = fakeIdentity{hostname: "SUPLA-DDEEFF", rootCA: []byte("ca"), noSSL: tt.noSSL}
			h.layer.Iterate(h.now)

			opts := h.conn().opts
			if opts.TLS != tt.wantTLS || opts.Port != tt.wantPort || string(opts.RootCA) != tt.wantCA {
				t.Errorf("opts TLS = %v, port = %d, root CA = %q", opts.TLS, opts.Port, opts.RootCA)
			}
			if got := h.layer.Settings().TLS; got != tt.tls {
				t.Errorf("stored TLS changed to %v", got)
			}
		})
	}
}

func TestLayer_RegistersWithoutBlocking(t *testing.T) {
	h := newHarness(t, validSettings())

	if got := h.layer.Iterate(h.now); got != protocol.LinkConnecting {
		t.Fatalf("Iterate() = %v, want connecting", got)
	}
	// Attempt still in flight.
	if got := h.layer.Iterate(h.now); got != protocol.LinkConnecting {
		t.Fatalf("Iterate() = %v, want connecting", got)
	}
	if h.layer.IsRegistered() {
		t.Fatal("registered before attempt finished")
	}

	c := h.conn()
	c.pending.done = true
	c.connected = true
	if got := h.layer.Iterate(h.now); got != protocol.LinkRegistered {
		t.Fatalf("Iterate() = %v, want registered", got)
	}
	if !h.layer.IsRegistered() {
		t.Error("IsRegistered() = false")
	}

	h.layer.Disconnect()
	if h.layer.IsRegistered() || !c.closed {
		t.Error("Disconnect() did not end the session")
	}
}

func TestLayer_RestartAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t, validSettings())

	for i := 1; i <= restartAfterFailures; i++ {
		h.layer.Iterate(h.now)
		c := h.conn()
		c.pending.done = true
		c.pending.err = errors.New("refused")
		if got := h.layer.Iterate(h.now); got != protocol.LinkFailed {
			t.Fatalf("attempt %d: Iterate() = %v, want failed", i, got)
		}
		if i < restartAfterFailures && h.layer.IsNetworkRestartRequested() {
			t.Fatalf("restart requested after %d failures", i)
		}
	}
	if !h.layer.IsNetworkRestartRequested() {
		t.Fatal("restart not requested after repeated failures")
	}
	if h.layer.IsNetworkRestartRequested() {
		t.Error("reading the restart flag did not clear it")
	}
}

func TestLayer_ConnectionLost(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)

	c.connected = false
	if got := h.layer.Iterate(h.now); got != protocol.LinkFailed {
		t.Errorf("Iterate() = %v, want failed", got)
	}
	if h.layer.IsRegistered() {
		t.Error("still registered after connection loss")
	}
}

func TestLayer_CredentialChangeRequestsRestart(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)

	cfg := storage.NewMemoryConfig()
	s := validSettings()
	s.Pass = "rotated"
	_ = s.Save(cfg)
	if err := h.layer.OnLoadConfig(cfg); err != nil {
		t.Fatalf("OnLoadConfig() error = %v", err)
	}

	if !h.layer.IsNetworkRestartRequested() {
		t.Error("credential change did not request a restart")
	}
	if !c.closed || h.layer.IsRegistered() {
		t.Error("credential change did not drop the session")
	}

	// Reloading identical settings is not a change.
	_ = h.layer.OnLoadConfig(cfg)
	if h.layer.IsNetworkRestartRequested() {
		t.Error("identical reload requested a restart")
	}
}

// =============================================================================
// Server requests
// =============================================================================

func TestLayer_SetValue(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topics := mqtt.NewTopics("SUPLA-DDEEFF")

	c.deliver(t, topics.ChannelCommand(2, mqtt.CommandSet), `{"on":true,"duration_ms":500}`)
	c.deliver(t, topics.ChannelCommand(3, mqtt.CommandSet), `{"value":"0a0b"}`)
	if len(h.disp.values) != 0 {
		t.Fatal("requests dispatched outside Iterate")
	}
	h.layer.Iterate(h.now)

	if len(h.disp.values) != 2 {
		t.Fatalf("dispatched %d values, want 2", len(h.disp.values))
	}
	v := h.disp.values[0]
	if v.ChannelNumber != 2 || v.Value[0] != 1 || v.DurationMs != 500 {
		t.Errorf("first value = %+v", v)
	}
	if v := h.disp.values[1]; v.ChannelNumber != 3 || v.Value[0] != 0x0a || v.Value[1] != 0x0b {
		t.Errorf("second value = %+v", v)
	}

	res := c.last(t)
	if res.topic != topics.ChannelResult(3, mqtt.CommandSet) {
		t.Errorf("result topic = %q", res.topic)
	}
	var p resultPayload
	if err := json.Unmarshal(res.payload, &p); err != nil || !p.Success {
		t.Errorf("result payload = %s (%v)", res.payload, err)
	}
}

func TestLayer_SetValueSuppressed(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	h.disp.reply = proto.ReplySuppress

	c.deliver(t, mqtt.NewTopics("SUPLA-DDEEFF").ChannelCommand(1, mqtt.CommandSet), `{"on":false}`)
	h.layer.Iterate(h.now)
	if len(c.published) != 0 {
		t.Errorf("suppressed reply published %d messages", len(c.published))
	}
}

func TestLayer_SetValueRejectsBadPayload(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topic := mqtt.NewTopics("SUPLA-DDEEFF").ChannelCommand(1, mqtt.CommandSet)

	for _, payload := range []string{`not json`, `{}`, `{"value":"zz"}`, `{"value":"000102030405060708"}`} {
		c.deliver(t, topic, payload)
	}
	h.layer.Iterate(h.now)
	if len(h.disp.values) != 0 {
		t.Errorf("bad payloads dispatched %d values", len(h.disp.values))
	}
}

func TestLayer_ExecuteToggle(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topic := mqtt.NewTopics("SUPLA-DDEEFF").ChannelCommand(0, mqtt.CommandExecute)

	h.disp.current[0] = 1
	c.deliver(t, topic, "toggle")
	h.layer.Iterate(h.now)
	if len(h.disp.values) != 1 || h.disp.values[0].Value[0] != 0 {
		t.Fatalf("toggle of on channel = %+v", h.disp.values)
	}

	c.deliver(t, topic, "TURN_ON")
	c.deliver(t, topic, "explode")
	h.layer.Iterate(h.now)
	if len(h.disp.values) != 2 || h.disp.values[1].Value[0] != 1 {
		t.Errorf("turn on = %+v", h.disp.values)
	}
}

func TestLayer_GetState(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topics := mqtt.NewTopics("SUPLA-DDEEFF")

	c.deliver(t, topics.ChannelCommand(4, mqtt.CommandGetState), "")
	h.layer.Iterate(h.now)

	res := c.last(t)
	if res.topic != topics.ChannelStateReport(4) {
		t.Fatalf("topic = %q", res.topic)
	}
	var p channelStatePayload
	if err := json.Unmarshal(res.payload, &p); err != nil {
		t.Fatalf("payload error = %v", err)
	}
	if p.IPv4 != "192.168.1.20" || p.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("state = %+v", p)
	}
}

func TestLayer_ChannelConfigBurst(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topics := mqtt.NewTopics("SUPLA-DDEEFF")

	c.deliver(t, topics.ChannelConfigCommand(5, mqtt.ConfigSet), `{"func":40,"type":0,"config":"AQI="}`)
	c.deliver(t, topics.ChannelConfigCommand(5, mqtt.ConfigSet), `{"func":40,"type":2,"config":"AAA=","last":true}`)
	c.deliver(t, topics.ChannelConfigCommand(5, mqtt.ConfigAck), `{"type":3,"result":3}`)
	h.layer.Iterate(h.now)

	if len(h.disp.configs) != 2 {
		t.Fatalf("configs = %d, want 2", len(h.disp.configs))
	}
	if h.disp.configs[0].ConfigType != proto.ConfigTypeDefault || string(h.disp.configs[0].Config) != "\x01\x02" {
		t.Errorf("first config = %+v", h.disp.configs[0])
	}
	if h.disp.configs[1].ConfigType != proto.ConfigTypeWeeklySchedule {
		t.Errorf("second config type = %v", h.disp.configs[1].ConfigType)
	}
	if len(h.disp.finished) != 1 || h.disp.finished[0] != 5 {
		t.Errorf("finished = %v, want [5]", h.disp.finished)
	}
	if len(h.disp.acks) != 1 || h.disp.acks[0].ConfigType != proto.ConfigTypeAltWeeklySchedule || h.disp.acks[0].Result != proto.ResultCodeTrue {
		t.Errorf("acks = %+v", h.disp.acks)
	}
}

func TestLayer_CalCfgAndDeviceConfig(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topics := mqtt.NewTopics("SUPLA-DDEEFF")

	c.deliver(t, topics.CalCfg(), `{"command":2000,"super_user":true}`)
	c.deliver(t, topics.DeviceConfig(), `{"fields":3}`)
	h.layer.Iterate(h.now)

	if len(h.disp.calcfgs) != 1 {
		t.Fatalf("calcfgs = %d, want 1", len(h.disp.calcfgs))
	}
	req := h.disp.calcfgs[0]
	if req.ChannelNumber != -1 || req.Command != proto.CalCfgCmdEnterConfigMode || !req.SuperUserAuth {
		t.Errorf("calcfg = %+v", req)
	}
	if len(h.disp.masks) != 1 || h.disp.masks[0] != 3 {
		t.Errorf("masks = %v", h.disp.masks)
	}

	var res calCfgResultPayload
	for _, p := range c.published {
		if p.topic == topics.CalCfgResult() {
			_ = json.Unmarshal(p.payload, &res)
		}
	}
	if res.Result != "done" || res.Command != proto.CalCfgCmdEnterConfigMode {
		t.Errorf("calcfg result = %+v", res)
	}
}

func TestLayer_QueueOverflowDrops(t *testing.T) {
	h := newHarness(t, validSettings())
	c := h.register(t)
	topic := mqtt.NewTopics("SUPLA-DDEEFF").ChannelCommand(1, mqtt.CommandSet)

	for i := 0; i < inboxSize+3; i++ {
		c.deliver(t, topic, `{"on":true}`)
	}
	if h.layer.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", h.layer.Dropped())
	}
	h.layer.Iterate(h.now)
	if len(h.disp.values) != inboxSize {
		t.Errorf("dispatched %d, want %d", len(h.disp.values), inboxSize)
	}
}

// =============================================================================
// Sender
// =============================================================================

func TestSender(t *testing.T) {
	s := validSettings()
	s.Retain = true
	h := newHarness(t, s)
	sender := h.layer.Sender()

	if err := sender.SendChannelValue(0, [proto.ChannelValueSize]byte{1}, true); !errors.Is(err, protocol.ErrNotConnected) {
		t.Errorf("SendChannelValue() before registration error = %v", err)
	}

	c := h.register(t)
	topics := mqtt.NewTopics("SUPLA-DDEEFF")

	if err := sender.SendChannelValue(2, [proto.ChannelValueSize]byte{1}, true); err != nil {
		t.Fatalf("SendChannelValue() error = %v", err)
	}
	msg := c.last(t)
	if msg.topic != topics.ChannelState(2) || !msg.retained {
		t.Errorf("value published to %q retained=%v", msg.topic, msg.retained)
	}
	var v valuePayload
	if err := json.Unmarshal(msg.payload, &v); err != nil {
		t.Fatalf("payload error = %v", err)
	}
	if v.Value != "0100000000000000" || !v.On || !v.Online {
		t.Errorf("value payload = %+v", v)
	}

	cfg := proto.ChannelConfig{ChannelNumber: 2, Func: 40, ConfigType: proto.ConfigTypeWeeklySchedule, Config: []byte{1}}
	if err := sender.SendChannelConfig(cfg); err != nil {
		t.Fatalf("SendChannelConfig() error = %v", err)
	}
	if msg := c.last(t); msg.topic != topics.ChannelConfig(2) {
		t.Errorf("config published to %q", msg.topic)
	}
}
