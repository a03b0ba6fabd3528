package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttersim/internal/accessory"
	"github.com/jkaflik/shuttersim/internal/shutter/driver/simulated"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	paho.Token
	err error
}

func (t doneToken) Wait() bool   { return true }
func (t doneToken) Error() error { return t.err }

type message struct {
	paho.Message
	topic   string
	payload []byte
}

func (m message) Topic() string   { return m.topic }
func (m message) Payload() []byte { return m.payload }

type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	published    map[string]string
	handlers     map[string]paho.MessageHandler
	unsubscribed []string
	publishErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: map[string]string{}, handlers: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := payload.(type) {
	case string:
		c.published[topic] = p
	case []byte:
		c.published[topic] = string(p)
	}
	return doneToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = callback
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubscribed = append(c.unsubscribed, topics...)
	return doneToken{}
}

func (c *fakeClient) Published(topic string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.published[topic]
}

func (c *fakeClient) Unsubscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.unsubscribed...)
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()

	h(c, message{topic: topic, payload: []byte(payload)})
}

func newTestBridge(t *testing.T) (*Bridge, *fakeClient, *accessory.Accessory) {
	t.Helper()
	s := simulated.NewShutter("salon", simulated.WithTravelTime(time.Millisecond*5))
	a := accessory.New(accessory.Info{Name: "salon", SerialNumber: "SN-1", Manufacturer: "Somfy", Model: "Ilmo"}, s)
	client := newFakeClient()
	bridge := NewBridge(client, a)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bridge.Subscribe(ctx))

	return bridge, client, a
}

func TestNewBridgeTopics(t *testing.T) {
	bridge, _, _ := newTestBridge(t)

	assert.Equal(t, "shuttersim/salon/position", bridge.PositionTopic)
	assert.Equal(t, "shuttersim/salon/target", bridge.TargetTopic)
	assert.Equal(t, "shuttersim/salon/state", bridge.StateTopic)
	assert.Equal(t, "shuttersim/salon/target/set", bridge.SetTargetTopic)
	assert.Equal(t, "shuttersim/salon/hold/set", bridge.SetHoldTopic)
}

func TestBridgePublishState(t *testing.T) {
	bridge, client, _ := newTestBridge(t)

	require.NoError(t, bridge.PublishState())
	assert.Equal(t, "0", client.Published(bridge.PositionTopic))
	assert.Equal(t, "0", client.Published(bridge.TargetTopic))
	assert.Equal(t, "stopped", client.Published(bridge.StateTopic))

	client.publishErr = errors.New("broker gone")
	assert.Error(t, bridge.PublishState())
}

func TestBridgeSetMetadata(t *testing.T) {
	bridge, client, _ := newTestBridge(t)

	require.NoError(t, bridge.SetMetadata(map[string]interface{}{"azimuth": 253}))
	assert.JSONEq(t, `{"azimuth": 253}`, client.Published(bridge.MetadataTopic))

	require.NoError(t, bridge.SetMetadata(nil))
}

func TestBridgeSetTarget(t *testing.T) {
	t.Run("valid target moves and settles", func(t *testing.T) {
		bridge, client, a := newTestBridge(t)

		client.deliver(bridge.SetTargetTopic, "50")
		assert.Equal(t, "decreasing", client.Published(bridge.StateTopic))
		assert.Equal(t, "50", client.Published(bridge.TargetTopic))

		assert.Eventually(t, func() bool {
			return client.Published(bridge.PositionTopic) == "50"
		}, time.Second, time.Millisecond)
		assert.Eventually(t, func() bool {
			return client.Published(bridge.StateTopic) == "stopped"
		}, time.Second, time.Millisecond)
		assert.Equal(t, "salon", a.Name())
	})

	t.Run("out of range target is dropped", func(t *testing.T) {
		bridge, client, a := newTestBridge(t)

		client.deliver(bridge.SetTargetTopic, "150")
		client.deliver(bridge.SetTargetTopic, "abc")

		assert.Equal(t, 0, a.Values()["TargetPosition"])
		assert.Empty(t, client.Published(bridge.StateTopic))
	})
}

func TestBridgeCommands(t *testing.T) {
	t.Run("close targets fully closed position", func(t *testing.T) {
		bridge, client, a := newTestBridge(t)

		client.deliver(bridge.CommandTopic, "close")
		assert.Equal(t, 100, a.Values()["TargetPosition"])
	})

	t.Run("open targets fully open position", func(t *testing.T) {
		bridge, client, a := newTestBridge(t)

		client.deliver(bridge.CommandTopic, "close")
		client.deliver(bridge.CommandTopic, "OPEN")
		assert.Equal(t, 0, a.Values()["TargetPosition"])
	})

	t.Run("stop is a hold position no-op", func(t *testing.T) {
		bridge, client, a := newTestBridge(t)

		client.deliver(bridge.CommandTopic, "stop")
		client.deliver(bridge.SetHoldTopic, "ON")
		client.deliver(bridge.SetHoldTopic, "maybe")
		client.deliver(bridge.IdentifyTopic, "")
		assert.Equal(t, map[string]int{
			"CurrentPosition": 0,
			"TargetPosition":  0,
			"PositionState":   2,
		}, a.Values())
	})
}

func TestBridgeUnsubscribeOnCancel(t *testing.T) {
	s := simulated.NewShutter("salon")
	client := newFakeClient()
	bridge := NewBridge(client, accessory.New(accessory.Info{}, s))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bridge.Subscribe(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		return len(client.Unsubscribed()) == 4
	}, time.Second, time.Millisecond)
}

func TestBridgeResubscribeUnsubscribesOnce(t *testing.T) {
	s := simulated.NewShutter("salon")
	client := newFakeClient()
	bridge := NewBridge(client, accessory.New(accessory.Info{}, s))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bridge.Subscribe(ctx))
	require.NoError(t, bridge.Subscribe(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		return len(client.Unsubscribed()) == 4
	}, time.Second, time.Millisecond)
	assert.Never(t, func() bool {
		return len(client.Unsubscribed()) > 4
	}, 50*time.Millisecond, time.Millisecond)
}

func TestPublishHAAutoDiscovery(t *testing.T) {
	bridge, client, _ := newTestBridge(t)

	cover := NewHACoverFromMQTTBridge(bridge)
	require.NoError(t, PublishHAAutoDiscovery(client, "homeassistant", cover))

	payload := client.Published("homeassistant/cover/shuttersim/salon/config")
	require.NotEmpty(t, payload)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "SN-1", decoded["uniq_id"])
	assert.Equal(t, bridge.SetTargetTopic, decoded["set_pos_t"])
	assert.Equal(t, float64(0), decoded["pos_open"])
	assert.Equal(t, float64(100), decoded["pos_clsd"])
	assert.Equal(t, "increasing", decoded["stat_opening"])
	assert.Equal(t, "decreasing", decoded["stat_closing"])
	assert.Equal(t, AvailabilityTopic, decoded["avty_t"])
}
