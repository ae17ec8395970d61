package weather

import (
	"context"
)

// Provider abstracts the remote forecast source (WeatherAPI.com).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, at Coordinates) (Record, error)
}

// Store is the contract every single-city cache backend must satisfy.
// Upsert keeps exactly one record: the one for rec.CityName.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	LoadCurrent(ctx context.Context) (Record, error)
}

// Probe reports network reachability, both on demand and as transitions.
type Probe interface {
	IsReachable() bool
	Observe(onChange func(reachable bool)) (cancel func())
}

// Locator is the external location collaborator. Fixes are pushed to the
// handler registered with Listen; RequestLocation asks for a fresh one.
type Locator interface {
	Listen(handler func(Coordinates))
	RequestLocation(ctx context.Context) error
}

// Observer receives controller outcomes for logging and metrics.
type Observer interface {
	ObserveFetch(at Coordinates, err error)
	ObservePersist(rec Record, err error)
	ObservePublish(rec Record)
	ObserveReachability(reachable bool)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(Coordinates, error) {}
func (nopObserver) ObservePersist(Record, error) {}
func (nopObserver) ObservePublish(Record) {}
func (nopObserver) ObserveReachability(bool) {}
