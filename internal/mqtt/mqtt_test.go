package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

type sentMessage struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error

	// when set, Publish waits for it to be closed
	release chan struct{}
}

func (f *fakePublisher) Publish(topic string, payload []byte, retained bool) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{topic: topic, payload: payload, retained: retained})
	return f.err
}

// waitSent polls until the messages sent so far satisfy match.
func (f *fakePublisher) waitSent(t *testing.T, match func([]sentMessage) bool) []sentMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		sent := append([]sentMessage(nil), f.sent...)
		f.mu.Unlock()
		if match(sent) {
			return sent
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for messages, got %d", len(sent))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func lastCity(t *testing.T, sent []sentMessage) string {
	t.Helper()
	if len(sent) == 0 {
		return ""
	}
	var rec weather.Record
	if err := json.Unmarshal(sent[len(sent)-1].payload, &rec); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	return rec.CityName
}

// silentBroker accepts MQTT connections, acknowledges CONNECT and then
// ignores every other packet.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				// CONNACK, session not present, accepted
				if _, err := conn.Write([]byte{0x20, 0x02, 0x00, 0x00}); err != nil {
					return
				}
				io.Copy(io.Discard, conn)
			}(conn)
		}
	}()
	return "tcp://" + ln.Addr().String()
}

func TestRecordSinkPublishesRetainedJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewRecordSink(pub, "weather/current")
	defer sink.Close()

	rec := weather.Record{CityName: "Paris", CurrentTemperatureC: 14.5, TomorrowMaxTemperatureC: 19}
	sink.Deliver(rec)

	sent := pub.waitSent(t, func(s []sentMessage) bool { return len(s) == 1 })
	msg := sent[0]
	if msg.topic != "weather/current" || !msg.retained {
		t.Fatalf("unexpected message %+v", msg)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got["cityName"] != "Paris" || got["currentTemperatureC"] != 14.5 {
		t.Fatalf("unexpected payload %s", msg.payload)
	}
}

func TestRecordSinkSurvivesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewRecordSink(pub, "weather/current")
	defer sink.Close()

	sink.Deliver(weather.Record{CityName: "Paris"})
	pub.waitSent(t, func(s []sentMessage) bool { return len(s) == 1 })
	sink.Deliver(weather.Record{CityName: "Lyon"})
	sent := pub.waitSent(t, func(s []sentMessage) bool { return len(s) == 2 })
	if city := lastCity(t, sent); city != "Lyon" {
		t.Fatalf("expected a second attempt for Lyon, got %s", city)
	}
}

func TestRecordSinkDeliverDoesNotWaitForPublish(t *testing.T) {
	pub := &fakePublisher{release: make(chan struct{})}
	var once sync.Once
	unblock := func() { once.Do(func() { close(pub.release) }) }
	sink := NewRecordSink(pub, "weather/current")
	defer sink.Close()
	defer unblock()

	delivered := make(chan struct{})
	go func() {
		sink.Deliver(weather.Record{CityName: "Paris"})
		sink.Deliver(weather.Record{CityName: "Lyon"})
		sink.Deliver(weather.Record{CityName: "Nice"})
		close(delivered)
	}()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a stalled publish")
	}

	unblock()
	sent := pub.waitSent(t, func(s []sentMessage) bool { return lastCity(t, s) == "Nice" })
	if len(sent) > 2 {
		t.Fatalf("queued records should collapse to the newest, got %d publishes", len(sent))
	}
}

func TestPublishTimesOutWithoutAck(t *testing.T) {
	c, err := Connect(silentBroker(t), "weather-sync-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	c.requestTimeout = 200 * time.Millisecond

	start := time.Now()
	err = c.Publish("weather/current", []byte(`{"cityName":"Paris"}`), true)
	if !errors.Is(err, errPublishTimeout) {
		t.Fatalf("expected publish timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("publish took %s", elapsed)
	}
}

func TestRecordSinkWithUnresponsiveBroker(t *testing.T) {
	c, err := Connect(silentBroker(t), "weather-sync-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	c.requestTimeout = 200 * time.Millisecond

	sink := NewRecordSink(c, "weather/current")

	delivered := make(chan struct{})
	go func() {
		sink.Deliver(weather.Record{CityName: "Paris"})
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked waiting for the broker")
	}

	closed := make(chan struct{})
	go func() {
		sink.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("sink did not stop after the publish timed out")
	}
}

func TestBrokerAddress(t *testing.T) {
	cases := map[string]string{
		"":                          "tcp://localhost:1883",
		"mqtt://mosquitto:1883":     "tcp://mosquitto:1883",
		" tcp://broker:1883 ":       "tcp://broker:1883",
		"ssl://broker.example:8883": "ssl://broker.example:8883",
	}
	for in, want := range cases {
		if got := brokerAddress(in); got != want {
			t.Errorf("brokerAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
