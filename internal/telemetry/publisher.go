package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// progress forwards mission progress messages to the ground over MQTT.
type progress struct {
	client   publisher
	deviceID string
	topic    string
	inbox    chan types.Message
}

func NewProgressPublisher(client mqtt.Client, deviceID string) types.MessageHandler {
	return newProgress(client, deviceID)
}

func newProgress(client publisher, deviceID string) *progress {
	return &progress{client, deviceID, MissionTopic(deviceID), make(chan types.Message, 32)}
}

func (p *progress) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Println("Progress publisher shutting down")
			return
		case msg := <-p.inbox:
			p.publishMessage(msg)
		}
	}
}

// Receive never blocks the bus: when the uplink falls behind, messages are dropped.
// Only broadcast messages leave the vehicle.
func (p *progress) Receive(message types.Message) {
	if !types.IsBroadcast(message) || !forwarded(message.MessageType) {
		return
	}
	select {
	case p.inbox <- message:
	default:
		log.Printf("Progress publisher: inbox full, dropping %s", message.MessageType)
	}
}

func forwarded(messageType string) bool {
	switch messageType {
	case types.MessageTypeStateChanged,
		types.MessageTypeWaypointReached,
		types.MessageTypeReportSent,
		types.MessageTypeBatteryLow,
		types.MessageTypeFault,
		types.MessageTypeMissionFinished:
		return true
	}
	return false
}

func (p *progress) publishMessage(msg types.Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Progress publisher: could not marshal %s: %v", msg.MessageType, err)
		return
	}
	err = publish(p.client, p.topic, b)
	if err != nil {
		log.Printf("Progress publisher: %v", err)
	}
}
