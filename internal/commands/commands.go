// Package commands turns operator commands received over MQTT into bus
// messages.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

const (
	qos    = 1
	retain = false
)

type controlCommand struct {
	Command   string    `json:"command"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type deviceState struct {
	StartedAt time.Time `json:"started_at"`
	Message   string    `json:"message"`
}

type client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type commandHandler struct {
	client   client
	deviceID string
}

func New(mqttClient mqtt.Client, deviceID string) types.MessageHandler {
	return &commandHandler{mqttClient, deviceID}
}

func (c *commandHandler) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	log.Printf("Subscribing to MQTT commands")
	commandTopic := fmt.Sprintf("/devices/%s/commands/", c.deviceID)
	token := c.client.Subscribe(fmt.Sprintf("%v#", commandTopic), qos, func(_ mqtt.Client, msg mqtt.Message) {
		subfolder := strings.TrimPrefix(msg.Topic(), commandTopic)
		handleCommand(subfolder, msg.Payload(), c.deviceID, post)
	})
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Printf("Error on subscribe: %v", token.Error())
		return
	}

	publishDeviceState(c.client, c.deviceID)

	<-ctx.Done()
	log.Println("Commands shutting down")
}

func (c *commandHandler) Receive(message types.Message) {
}

func handleCommand(subfolder string, payload []byte, deviceID string, post types.PostFn) {
	switch subfolder {
	case "control":
		log.Printf("Got control command: %v", string(payload))
		handleControlCommand(payload, deviceID, post)
	default:
		log.Printf("Unknown command subfolder: %v", subfolder)
	}
}

func handleControlCommand(payload []byte, deviceID string, post types.PostFn) {
	var cmd controlCommand
	err := json.Unmarshal(payload, &cmd)
	if err != nil {
		log.Printf("Could not unmarshal command: %v", err)
		return
	}

	switch cmd.Command {
	case "abort":
		reason := cmd.Payload
		if reason == "" {
			reason = "ground station"
		}
		log.Printf("Backend requesting mission abort: %s", reason)
		post(types.CreateMessage(types.MessageTypeAbort, "commands", deviceID, types.Abort{Reason: reason}))
	default:
		log.Printf("Unknown command: %v", cmd.Command)
	}
}

func publishDeviceState(c client, deviceID string) {
	topic := fmt.Sprintf("/devices/%s/state", deviceID)
	msg := deviceState{
		StartedAt: time.Now().UTC(),
		Message:   "mission executor online",
	}
	b, _ := json.Marshal(msg)
	tok := c.Publish(topic, qos, retain, b)
	if !tok.WaitTimeout(10 * time.Second) {
		log.Printf("Could not send device state within 10s")
		return
	}
	if err := tok.Error(); err != nil {
		log.Printf("Could not send device state: %v", err)
	}
}
