package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttersim/internal/shutter"
	"github.com/pkg/errors"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic string `json:"avty_t,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Name              string `json:"name,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

// haCover maps position 0 to open. Moving towards open lowers the position,
// which the controller reports as increasing.
type haCover struct {
	haEntity
	StateTopic       string `json:"stat_t"`
	CommandTopic     string `json:"cmd_t"`
	PositionTopic    string `json:"pos_t"`
	SetPositionTopic string `json:"set_pos_t"`
	PositionOpen     int    `json:"pos_open"`
	PositionClosed   int    `json:"pos_clsd"`
	PayloadOpen      string `json:"pl_open"`
	PayloadStop      string `json:"pl_stop"`
	PayloadClose     string `json:"pl_cls"`
	StateOpening     string `json:"stat_opening"`
	StateClosing     string `json:"stat_closing"`
	StateStopped     string `json:"stat_stopped"`
}

func NewHACoverFromMQTTBridge(bridge *Bridge) haCover {
	info := bridge.accessory.Info()
	return haCover{
		haEntity: haEntity{
			AvailabilityTopic: AvailabilityTopic,
			UniqueID:          info.SerialNumber,
			Name:              info.Name,
			DeviceClass:       "shutter",

			Device: haDevice{
				Identifiers:  []string{info.SerialNumber},
				Manufacturer: info.Manufacturer,
				Model:        info.Model,
				Name:         info.Name,
				SWVersion:    info.FirmwareRevision,
			},
		},
		StateTopic:       bridge.StateTopic,
		CommandTopic:     bridge.CommandTopic,
		PositionTopic:    bridge.PositionTopic,
		SetPositionTopic: bridge.SetTargetTopic,
		PositionOpen:     shutter.MinPosition,
		PositionClosed:   shutter.MaxPosition,
		PayloadOpen:      mqttOpenCmd,
		PayloadStop:      mqttStopCmd,
		PayloadClose:     mqttCloseCmd,
		StateOpening:     shutter.Increasing.String(),
		StateClosing:     shutter.Decreasing.String(),
		StateStopped:     shutter.Stopped.String(),
	}
}

func haDiscoveryTopic(prefix string, cover haCover) string {
	return fmt.Sprintf("%s/cover/%s/%s/config", prefix, TopicPrefix, cover.Name)
}

func PublishHAAutoDiscovery(client paho.Client, homeAssistantDiscoveryTopicPrefix string, cover haCover) error {
	payload, err := json.Marshal(cover)
	if err != nil {
		return err
	}

	topic := haDiscoveryTopic(homeAssistantDiscoveryTopicPrefix, cover)
	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: home assistant discovery publish failed", cover.Name)
	}

	return nil
}
