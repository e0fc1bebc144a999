//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Integration tests against a local broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()
	c, err := New(Options{
		Server:      "127.0.0.1",
		Port:        1883,
		ClientID:    clientID,
		QoS:         1,
		StatusTopic: NewTopics(clientID).Status(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectIntegration(t, "supla-int-sub-track")
	topics := NewTopics("supla-int-sub-track")

	subs := []string{
		topics.ChannelCommand(0, CommandSet),
		topics.ChannelCommand(1, CommandSet),
		topics.CalCfg(),
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range subs {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(subs) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(subs))
	}

	if err := client.Unsubscribe(subs[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(subs[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", subs[0])
	}
}

func TestIntegration_TrackedRestoredOnConnect(t *testing.T) {
	c, err := New(Options{Server: "127.0.0.1", Port: 1883, ClientID: "supla-int-track"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close() //nolint:errcheck // Test cleanup

	topics := NewTopics("supla-int-track")
	received := make(chan int32, 1)
	var once sync.Once
	err = c.Track(topics.AllChannelCommands(), 1, func(topic string, _ []byte) error {
		if n, _, ok := topics.ParseChannelTopic(topic); ok {
			once.Do(func() { received <- n })
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	pub := connectIntegration(t, "supla-int-track-pub")
	time.Sleep(200 * time.Millisecond)
	if err := pub.PublishString(topics.ChannelCommand(4, CommandSet), `{"on":true}`, 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case n := <-received:
		if n != 4 {
			t.Errorf("channel = %d, want 4", n)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for tracked subscription message")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pubClient := connectIntegration(t, "supla-int-pub")
	subClient := connectIntegration(t, "supla-int-sub")

	topic := NewTopics("supla-int-pub").ChannelState(0)
	expected := "test-message-12345"

	received := make(chan string, 1)
	var once sync.Once
	err := subClient.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.PublishAsync(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("PublishAsync() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("Received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}
