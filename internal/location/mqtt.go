package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

var validate = validator.New()

// PubSub is the broker surface the MQTT locator needs.
type PubSub interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Publish(topic string, payload []byte, retained bool) error
}

// fixMessage is the payload of a location fix: {"lat": 48.85, "lon": 2.35}.
type fixMessage struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// MQTTLocator receives fixes from a broker topic and asks for new ones by
// publishing on a request topic.
type MQTTLocator struct {
	client       PubSub
	requestTopic string

	mu      sync.Mutex
	handler func(weather.Coordinates)
}

// NewMQTTLocator subscribes to fixTopic right away. Fixes that arrive before
// Listen is called are dropped.
func NewMQTTLocator(client PubSub, fixTopic, requestTopic string) (*MQTTLocator, error) {
	l := &MQTTLocator{client: client, requestTopic: requestTopic}
	if err := client.Subscribe(fixTopic, l.onMessage); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", fixTopic, err)
	}
	return l, nil
}

func (l *MQTTLocator) onMessage(topic string, payload []byte) {
	at, err := decodeFix(payload)
	if err != nil {
		log.Printf("ERROR: dropping location fix on %s: %v", topic, err)
		return
	}

	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(at)
	}
}

func decodeFix(payload []byte) (weather.Coordinates, error) {
	var msg fixMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return weather.Coordinates{}, err
	}
	if err := validate.Struct(msg); err != nil {
		return weather.Coordinates{}, err
	}
	return weather.Coordinates{Latitude: *msg.Lat, Longitude: *msg.Lon}, nil
}

func (l *MQTTLocator) Listen(handler func(weather.Coordinates)) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// RequestLocation publishes a request for a fresh fix. The answer arrives on
// the fix topic.
func (l *MQTTLocator) RequestLocation(context.Context) error {
	if l.requestTopic == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"requestedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return l.client.Publish(l.requestTopic, payload, false)
}

var _ weather.Locator = (*MQTTLocator)(nil)
