package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

var (
	FetchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_sync_fetches_total",
			Help: "Forecast fetches by outcome (ok, transport_error, parse_error, error).",
		},
		[]string{"outcome"},
	)
	PersistCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_sync_persists_total",
			Help: "Cache writes by outcome (ok, error).",
		},
		[]string{"outcome"},
	)
	PublishCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_sync_publications_total",
			Help: "Weather records published to subscribers.",
		},
	)
	ReachableGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weather_sync_network_reachable",
			Help: "1 when the network is considered reachable, 0 otherwise.",
		},
	)
	TemperatureGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weather_sync_current_temperature_celsius",
			Help: "Current temperature of the last published record.",
		},
		[]string{"city"},
	)
)

func init() {
	prometheus.MustRegister(FetchCounter, PersistCounter, PublishCounter, ReachableGauge, TemperatureGauge)
}

// Metrics is a weather.Observer backed by the package collectors.
type Metrics struct{}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ObserveFetch(at weather.Coordinates, err error) {
	FetchCounter.WithLabelValues(fetchOutcome(err)).Inc()
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, weather.ErrTransport):
		return "transport_error"
	case errors.Is(err, weather.ErrParse):
		return "parse_error"
	default:
		return "error"
	}
}

func (m *Metrics) ObservePersist(rec weather.Record, err error) {
	if err != nil {
		PersistCounter.WithLabelValues("error").Inc()
		return
	}
	PersistCounter.WithLabelValues("ok").Inc()
}

func (m *Metrics) ObservePublish(rec weather.Record) {
	PublishCounter.Inc()
	// One series per process: the cache only ever holds one city.
	TemperatureGauge.Reset()
	TemperatureGauge.WithLabelValues(rec.CityName).Set(rec.CurrentTemperatureC)
}

func (m *Metrics) ObserveReachability(reachable bool) {
	if reachable {
		ReachableGauge.Set(1)
		return
	}
	ReachableGauge.Set(0)
}

var _ weather.Observer = (*Metrics)(nil)
