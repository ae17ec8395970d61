package mqtt

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos            = 1
	connectTimeout = 15 * time.Second
	requestTimeout = 10 * time.Second
)

var (
	errConnectTimeout   = errors.New("mqtt connect timed out")
	errSubscribeTimeout = errors.New("mqtt subscribe timed out")
	errPublishTimeout   = errors.New("mqtt publish timed out")
)

// Handler receives the topic and raw payload of a message.
type Handler = func(topic string, payload []byte)

// Client is a thin wrapper around a paho client that restores its
// subscriptions after a reconnect.
type Client struct {
	client paho.Client

	// bounds how long Subscribe and Publish wait for the broker's ack
	requestTimeout time.Duration

	mu   sync.Mutex
	subs map[string]Handler
}

// Connect dials the broker. mqtt:// URLs are accepted as tcp://.
func Connect(brokerURL, clientID string) (*Client, error) {
	c := &Client{
		requestTimeout: requestTimeout,
		subs:           make(map[string]Handler),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(brokerAddress(brokerURL))
	if strings.TrimSpace(clientID) == "" {
		clientID = "weather-sync-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Printf("ERROR: mqtt connection lost: %v", err)
	}
	opts.OnConnect = func(pc paho.Client) {
		log.Printf("INFO: mqtt connected")
		c.resubscribe(pc)
	}

	c.client = paho.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		return nil, errConnectTimeout
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

func brokerAddress(brokerURL string) string {
	u := strings.TrimSpace(brokerURL)
	if u == "" {
		return "tcp://localhost:1883"
	}
	if strings.HasPrefix(u, "mqtt://") {
		return "tcp://" + strings.TrimPrefix(u, "mqtt://")
	}
	return u
}

// Subscribe registers handler for topic and keeps it across reconnects.
func (c *Client) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	tok := c.client.Subscribe(topic, qos, dispatch(handler))
	if !tok.WaitTimeout(c.requestTimeout) {
		return fmt.Errorf("%w: %s", errSubscribeTimeout, topic)
	}
	return tok.Error()
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, h := range c.subs {
		tok := pc.Subscribe(topic, qos, dispatch(h))
		go func(topic string) {
			tok.Wait()
			if err := tok.Error(); err != nil {
				log.Printf("ERROR: mqtt resubscribe %s: %v", topic, err)
			}
		}(topic)
	}
}

func dispatch(h Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

// Publish sends payload on topic with QoS 1 and gives up when the broker
// does not acknowledge it in time.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	tok := c.client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(c.requestTimeout) {
		return fmt.Errorf("%w: %s", errPublishTimeout, topic)
	}
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
