package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttersim/internal/accessory"
	"github.com/jkaflik/shuttersim/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	mqttOpenCmd  = "open"
	mqttCloseCmd = "close"
	mqttStopCmd  = "stop"

	TopicPrefix       = "shuttersim"
	AvailabilityTopic = TopicPrefix + "/availability"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

type Bridge struct {
	mqtt      paho.Client
	accessory *accessory.Accessory

	PositionTopic string
	TargetTopic   string
	StateTopic    string
	MetadataTopic string

	CommandTopic   string
	SetTargetTopic string
	SetHoldTopic   string
	IdentifyTopic  string

	unsubscribeOnce sync.Once
}

func NewBridge(client paho.Client, a *accessory.Accessory) *Bridge {
	bridge := &Bridge{mqtt: client, accessory: a}
	base := fmt.Sprintf("%s/%s", TopicPrefix, a.Name())
	bridge.PositionTopic = base + "/position"
	bridge.TargetTopic = base + "/target"
	bridge.StateTopic = base + "/state"
	bridge.MetadataTopic = base + "/metadata"
	bridge.CommandTopic = base + "/set"
	bridge.SetTargetTopic = base + "/target/set"
	bridge.SetHoldTopic = base + "/hold/set"
	bridge.IdentifyTopic = base + "/identify"

	a.OnUpdate(bridge.onUpdateHandler())

	return bridge
}

func (b *Bridge) Name() string {
	return b.accessory.Name()
}

func (b *Bridge) publish(topic string, payload interface{}) error {
	if token := b.mqtt.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT publish to %s failed", b.Name(), topic)
	}

	return nil
}

func (b *Bridge) SetMetadata(value interface{}) error {
	if value == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "%s: metadata encode failed", b.Name())
	}

	return b.publish(b.MetadataTopic, payload)
}

// PublishState publishes every readable characteristic, used after (re)connect.
func (b *Bridge) PublishState() error {
	for _, c := range []shutter.Characteristic{shutter.CurrentPosition, shutter.TargetPosition, shutter.PositionState} {
		value, err := b.accessory.Get(c)
		if err != nil {
			return err
		}
		if err := b.publishCharacteristic(c, value); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bridge) publishCharacteristic(c shutter.Characteristic, value int) error {
	switch c {
	case shutter.CurrentPosition:
		return b.publish(b.PositionTopic, strconv.Itoa(value))
	case shutter.TargetPosition:
		return b.publish(b.TargetTopic, strconv.Itoa(value))
	case shutter.PositionState:
		return b.publish(b.StateTopic, shutter.MotionState(value).String())
	}

	return nil
}

// Subscribe is called again on every reconnect. Topics are unsubscribed once,
// when the first context passed in is done.
func (b *Bridge) Subscribe(ctx context.Context) error {
	b.unsubscribeOnce.Do(func() {
		go func() {
			<-ctx.Done()
			if token := b.mqtt.Unsubscribe(b.CommandTopic, b.SetTargetTopic, b.SetHoldTopic, b.IdentifyTopic); token.Wait() && token.Error() != nil {
				logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.Name(), token.Error())
			}
		}()
	})

	subscriptions := []struct {
		topic   string
		handler paho.MessageHandler
	}{
		{b.CommandTopic, b.onCommandHandler()},
		{b.SetTargetTopic, b.onSetTargetHandler()},
		{b.SetHoldTopic, b.onSetHoldHandler()},
		{b.IdentifyTopic, b.onIdentifyHandler()},
	}
	for _, s := range subscriptions {
		if token := b.mqtt.Subscribe(s.topic, 0, s.handler); token.Wait() && token.Error() != nil {
			return errors.Wrapf(token.Error(), "%s: MQTT %s subscription failed", b.Name(), s.topic)
		}
		logrus.Infof("%s: MQTT %s subscribed", b.Name(), s.topic)
	}

	return nil
}

func (b *Bridge) onUpdateHandler() shutter.UpdateHandler {
	return func(c shutter.Characteristic, value int) {
		if err := b.publishCharacteristic(c, value); err != nil {
			logrus.Error(err)
		}
		if c != shutter.PositionState {
			return
		}
		// the controller does not notify target changes, a state change
		// always follows one
		target, err := b.accessory.Get(shutter.TargetPosition)
		if err != nil {
			logrus.Error(err)
			return
		}
		if err := b.publishCharacteristic(shutter.TargetPosition, target); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onCommandHandler() paho.MessageHandler {
	return func(c paho.Client, msg paho.Message) {
		cmd := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
		var err error
		switch cmd {
		case mqttOpenCmd:
			err = b.accessory.SetTargetPosition(shutter.MinPosition)
		case mqttCloseCmd:
			err = b.accessory.SetTargetPosition(shutter.MaxPosition)
		case mqttStopCmd:
			err = b.accessory.SetHoldPosition(true)
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.Name(), cmd)
			return
		}
		if err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onSetTargetHandler() paho.MessageHandler {
	return func(c paho.Client, msg paho.Message) {
		pos, err := strconv.Atoi(strings.TrimSpace(string(msg.Payload())))
		if err != nil {
			logrus.Errorf("%s: MQTT invalid target position payload: %s", b.Name(), err)
			return
		}
		if err := b.accessory.SetTargetPosition(pos); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onSetHoldHandler() paho.MessageHandler {
	return func(c paho.Client, msg paho.Message) {
		payload := strings.TrimSpace(string(msg.Payload()))
		hold, err := strconv.ParseBool(payload)
		if err != nil {
			hold = strings.EqualFold(payload, "on")
			if !hold && !strings.EqualFold(payload, "off") {
				logrus.Errorf("%s: MQTT invalid hold position payload %q", b.Name(), payload)
				return
			}
		}
		if err := b.accessory.SetHoldPosition(hold); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onIdentifyHandler() paho.MessageHandler {
	return func(c paho.Client, msg paho.Message) {
		b.accessory.Identify()
	}
}
