package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func testOptions() Options {
	return Options{
		Server:      "127.0.0.1",
		Port:        19997,
		ClientID:    "supla-test",
		QoS:         1,
		StatusTopic: NewTopics("supla-test").Status(),
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(testOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// =============================================================================
// Options Tests
// =============================================================================

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{"valid", func(*Options) {}, nil},
		{"empty server", func(o *Options) { o.Server = "" }, ErrInvalidOptions},
		{"port zero", func(o *Options) { o.Port = 0 }, ErrInvalidOptions},
		{"port too high", func(o *Options) { o.Port = 70000 }, ErrInvalidOptions},
		{"qos 3", func(o *Options) { o.QoS = 3 }, ErrInvalidQoS},
		{"bad root ca", func(o *Options) { o.TLS = true; o.RootCA = []byte("not a cert") }, ErrInvalidRootCA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			_, err := New(opts)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := testOptions()
	opts.Username = "dev"
	opts.Password = "secret"

	popts, err := buildClientOptions(opts)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if got := popts.Servers[0].String(); got != "tcp://127.0.0.1:19997" {
		t.Errorf("broker = %q, want tcp://127.0.0.1:19997", got)
	}
	if popts.ClientID != "supla-test" {
		t.Errorf("ClientID = %q", popts.ClientID)
	}
	if popts.Username != "dev" || popts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if popts.AutoReconnect {
		t.Error("AutoReconnect should default to false")
	}
	if !popts.WillEnabled || popts.WillTopic != opts.StatusTopic || !popts.WillRetained {
		t.Errorf("LWT = enabled %v topic %q retained %v", popts.WillEnabled, popts.WillTopic, popts.WillRetained)
	}
	if !strings.Contains(string(popts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s", popts.WillPayload)
	}
	if popts.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", popts.ConnectTimeout, defaultConnectTimeout)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	opts := testOptions()
	opts.TLS = true
	opts.Port = 8883

	popts, err := buildClientOptions(opts)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if got := popts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if popts.TLSConfig == nil || popts.TLSConfig.MinVersion != tlsMinVersion {
		t.Fatal("TLS config missing or below minimum version")
	}
	if popts.TLSConfig.RootCAs != nil {
		t.Error("RootCAs should be nil without a device CA")
	}
	if popts.TLSConfig.ServerName != "127.0.0.1" {
		t.Errorf("ServerName = %q", popts.TLSConfig.ServerName)
	}
}

func TestBuildClientOptions_NoStatusTopic(t *testing.T) {
	opts := testOptions()
	opts.StatusTopic = ""

	popts, err := buildClientOptions(opts)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if popts.WillEnabled {
		t.Error("LWT should be disabled without a status topic")
	}
}

func TestStatusPayloads(t *testing.T) {
	if p := buildOnlinePayload("dev"); !strings.Contains(p, `"status":"online"`) || !strings.Contains(p, `"client_id":"dev"`) {
		t.Errorf("online payload = %s", p)
	}
	if p := buildOfflinePayload("dev"); !strings.Contains(p, "graceful_shutdown") {
		t.Errorf("offline payload = %s", p)
	}
}

// =============================================================================
// Disconnected Behaviour
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	if (&Client{}).IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if newTestClient(t).IsConnected() {
		t.Error("IsConnected() should be false before Connect")
	}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
	if err := newTestClient(t).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := newTestClient(t)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newTestClient(t)
	big := make([]byte, maxPayloadSize+1)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "a/b", big, 0, ErrPublishFailed},
		{"disconnected", "a/b", []byte("x"), 1, ErrNotConnected},
		{"nil payload disconnected", "a/b", nil, 0, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
			if err := c.PublishAsync(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("PublishAsync() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if err := c.PublishString("a/b", "x", 0, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishString() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newTestClient(t)
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := c.Subscribe("a", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v", err)
	}
	if err := c.Subscribe("a", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("a", 0, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
	if err := c.Unsubscribe("a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe(disconnected) error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestTrack_WhileDisconnected(t *testing.T) {
	c := newTestClient(t)
	topics := NewTopics("supla-test")
	handler := func(string, []byte) error { return nil }

	if err := c.Track(topics.AllChannelCommands(), 1, handler); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := c.Track(topics.CalCfg(), 1, handler); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := c.Track("", 0, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Track(empty) error = %v", err)
	}

	if c.SubscriptionCount() != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", c.SubscriptionCount())
	}
	if !c.HasSubscription(topics.CalCfg()) {
		t.Error("HasSubscription(calcfg) = false")
	}
	if c.HasSubscription("nonexistent/topic") {
		t.Error("HasSubscription() should be false for untracked topic")
	}
}

func TestConnectAsync_Refused(t *testing.T) {
	opts := testOptions()
	opts.ConnectTimeout = time.Second
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	attempt := c.ConnectAsync()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = attempt.Wait(ctx)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Wait() error = %v, want ErrConnectionFailed", err)
	}
	if !attempt.Done() {
		t.Error("Done() = false after Wait returned")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after refused connection")
	}
}

// =============================================================================
// Handler Wrapping
// =============================================================================

func TestWrapHandler(t *testing.T) {
	c := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "a/b", payload: []byte("1")})
	if got != "a/b=1" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error {
		return errors.New("bad payload")
	})(nil, fakeMessage{topic: "a/b"})
	if len(logger.warns) != 1 {
		t.Errorf("warns = %d, want 1", len(logger.warns))
	}

	c.wrapHandler(func(string, []byte) error {
		panic("boom")
	})(nil, fakeMessage{topic: "a/b"})
	if len(logger.errors) != 1 {
		t.Errorf("errors = %d, want 1", len(logger.errors))
	}
}

func TestCallbacks(t *testing.T) {
	c := newTestClient(t)
	var connected, lost bool
	var lostErr error
	c.SetOnConnect(func() { connected = true })
	c.SetOnDisconnect(func(err error) { lost = true; lostErr = err })

	c.handleDisconnect(errors.New("eof"))
	if !lost || lostErr == nil {
		t.Error("OnDisconnect not invoked with error")
	}
	if connected {
		t.Error("OnConnect invoked unexpectedly")
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("SUPLA-DDEEFF")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Base", topics.Base(), "supla/devices/supla-ddeeff"},
		{"Status", topics.Status(), "supla/devices/supla-ddeeff/status"},
		{"DeviceState", topics.DeviceState(), "supla/devices/supla-ddeeff/state"},
		{"CalCfg", topics.CalCfg(), "supla/devices/supla-ddeeff/calcfg"},
		{"CalCfgResult", topics.CalCfgResult(), "supla/devices/supla-ddeeff/calcfg/result"},
		{"DeviceConfig", topics.DeviceConfig(), "supla/devices/supla-ddeeff/device_config/set"},
		{"ChannelState", topics.ChannelState(3), "supla/devices/supla-ddeeff/channels/3/state"},
		{"ChannelConfig", topics.ChannelConfig(3), "supla/devices/supla-ddeeff/channels/3/config"},
		{"ChannelCommand", topics.ChannelCommand(3, CommandSet), "supla/devices/supla-ddeeff/channels/3/set"},
		{"ChannelConfigCommand", topics.ChannelConfigCommand(3, ConfigSet), "supla/devices/supla-ddeeff/channels/3/config/set"},
		{"ChannelResult", topics.ChannelResult(3, ConfigSet), "supla/devices/supla-ddeeff/channels/3/set/result"},
		{"ChannelStateReport", topics.ChannelStateReport(3), "supla/devices/supla-ddeeff/channels/3/channel_state"},
		{"AllChannelCommands", topics.AllChannelCommands(), "supla/devices/supla-ddeeff/channels/+/+"},
		{"AllChannelConfigCommands", topics.AllChannelConfigCommands(), "supla/devices/supla-ddeeff/channels/+/config/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseChannelTopic(t *testing.T) {
	topics := NewTopics("dev")
	tests := []struct {
		topic   string
		channel int32
		rest    string
		ok      bool
	}{
		{"supla/devices/dev/channels/3/set", 3, "set", true},
		{"supla/devices/dev/channels/12/config/set", 12, "config/set", true},
		{"supla/devices/dev/channels/0/execute_action", 0, "execute_action", true},
		{"supla/devices/dev/channels/x/set", 0, "", false},
		{"supla/devices/dev/channels/-1/set", 0, "", false},
		{"supla/devices/dev/channels/3", 0, "", false},
		{"supla/devices/other/channels/3/set", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			n, rest, ok := topics.ParseChannelTopic(tt.topic)
			if ok != tt.ok || n != tt.channel || rest != tt.rest {
				t.Errorf("ParseChannelTopic() = (%d, %q, %v), want (%d, %q, %v)",
					n, rest, ok, tt.channel, tt.rest, tt.ok)
			}
		})
	}
}
