// Package mqttsink publishes meeting and recording state to an MQTT broker,
// e.g. to drive an on-air light.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meetcap/internal/domain"
)

const (
	qosAtLeastOnce = 1
	publishTimeout = 2 * time.Second
	disconnectWait = 250
)

// Config holds broker connection settings.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Logger      *log.Logger
}

// Publisher is the subset of mqtt.Client used by Sink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Sink implements ports.EventSink over MQTT. State topics are retained so a
// late subscriber sees the current state immediately.
type Sink struct {
	publisher Publisher
	prefix    string
	logger    *log.Logger
	client    mqtt.Client
}

type errorMessage struct {
	Code      domain.ErrorCode `json:"code"`
	Detail    string           `json:"detail"`
	Timestamp time.Time        `json:"timestamp"`
}

// Connect dials the broker and returns a sink owning the connection.
func Connect(cfg Config) (*Sink, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Printf("mqtt: connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	sink := New(client, cfg.TopicPrefix, logger)
	sink.client = client
	return sink, nil
}

func New(publisher Publisher, prefix string, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default()
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "meetcap"
	}
	return &Sink{publisher: publisher, prefix: prefix, logger: logger}
}

func (s *Sink) Topic(name string) string {
	return s.prefix + "/" + name
}

func (s *Sink) RecordingStateChanged(status domain.RecordingStatus) {
	s.publish("recording", true, status)
}

func (s *Sink) MeetingStateChanged(event domain.MeetingEvent) {
	s.publish("meeting", true, event)
}

func (s *Sink) SessionError(code domain.ErrorCode, detail string) {
	s.publish("error", false, errorMessage{Code: code, Detail: detail, Timestamp: time.Now().UTC()})
}

// Close disconnects when the sink owns the connection.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Disconnect(disconnectWait)
	}
}

func (s *Sink) publish(name string, retained bool, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Printf("mqtt: failed to encode %s message: %v", name, err)
		return
	}
	topic := s.Topic(name)
	token := s.publisher.Publish(topic, qosAtLeastOnce, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.logger.Printf("mqtt: publish to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Printf("mqtt: publish to %s failed: %v", topic, err)
	}
}
