package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"log"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// MQTT parameters
const (
	qos            = 1
	retain         = false
	publishTimeout = 5 * time.Second
	algorithm      = "RS256"
)

type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Username   string `yaml:"username"`
	PrivateKey string `yaml:"private_key"`
	Audience   string `yaml:"audience"`
}

func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// NewMQTTClient connects to the broker. When a private key is configured the
// password is a signed JWT, otherwise the connection is anonymous.
func NewMQTTClient(conf MQTTConfig, deviceID string) (mqtt.Client, error) {
	log.Printf("MQTT address: %v", conf.Broker)

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(deviceID).
		SetAutoReconnect(true).
		SetProtocolVersion(4) // Use MQTT 3.1.1

	if conf.Username != "" {
		opts.SetUsername(conf.Username)
	}
	if conf.PrivateKey != "" {
		pass, err := signedPassword(conf.PrivateKey, conf.Audience)
		if err != nil {
			return nil, err
		}
		opts.SetPassword(pass)
	}
	if strings.HasPrefix(conf.Broker, "ssl://") || strings.HasPrefix(conf.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client := mqtt.NewClient(opts)

	log.Printf("Connecting MQTT...")
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, errors.Errorf("MQTT connection to %s timed out", conf.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.WithMessage(err, "Could not connect MQTT")
	}
	log.Printf("..Connected")

	return client, nil
}

func signedPassword(privateKeyPath string, audience string) (string, error) {
	keyData, err := ioutil.ReadFile(privateKeyPath)
	if err != nil {
		return "", errors.WithMessage(err, "Could not read MQTT private key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return "", errors.WithMessage(err, "Could not parse MQTT private key")
	}

	t := time.Now()
	token := jwt.NewWithClaims(jwt.GetSigningMethod(algorithm), &jwt.StandardClaims{
		IssuedAt:  t.Unix(),
		ExpiresAt: t.Add(24 * time.Hour).Unix(),
		Audience:  audience,
	})

	return token.SignedString(key)
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

func ReportsTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/events/reports", deviceID)
}

func MissionTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/events/mission", deviceID)
}

// MQTTSink publishes reports as plain text, the same line the radio carries.
type MQTTSink struct {
	client publisher
	topic  string
}

func NewMQTTSink(client mqtt.Client, deviceID string) *MQTTSink {
	return &MQTTSink{client, ReportsTopic(deviceID)}
}

func (s *MQTTSink) Send(ctx context.Context, text string) error {
	return publish(s.client, s.topic, []byte(text))
}

func publish(client publisher, topic string, payload []byte) error {
	tok := client.Publish(topic, qos, retain, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return errors.Errorf("MQTT publish to %s timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return errors.WithMessagef(err, "MQTT publish to %s failed", topic)
	}
	return nil
}
