package mqtt

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

// Publisher is the part of Client used to send messages.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// RecordSink forwards published weather records to a broker topic as
// retained JSON, so late joiners get the current value.
//
// Records are handed to a background goroutine. Only the newest record
// waits while a publish is in flight; older ones are dropped.
type RecordSink struct {
	pub   Publisher
	topic string

	pending   chan weather.Record
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewRecordSink starts the sink's publishing goroutine. Call Close to stop it.
func NewRecordSink(pub Publisher, topic string) *RecordSink {
	s := &RecordSink{
		pub:     pub,
		topic:   topic,
		pending: make(chan weather.Record, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

// Deliver is meant to be registered with weather.Hub.Subscribe. It never
// waits on the broker.
func (s *RecordSink) Deliver(rec weather.Record) {
	for {
		select {
		case s.pending <- rec:
			return
		default:
		}
		select {
		case old := <-s.pending:
			log.Printf("DEBUG: mqtt sink replacing queued record for %s", old.CityName)
		default:
		}
	}
}

// Close stops the publishing goroutine after any in-flight publish returns.
func (s *RecordSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
}

func (s *RecordSink) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case rec := <-s.pending:
			s.publish(rec)
		}
	}
}

func (s *RecordSink) publish(rec weather.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Printf("ERROR: encode record for %s: %v", rec.CityName, err)
		return
	}
	if err := s.pub.Publish(s.topic, payload, true); err != nil {
		log.Printf("ERROR: mqtt publish to %s: %v", s.topic, err)
	}
}
