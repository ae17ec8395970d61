// Package location provides the sources of device coordinates the sync
// controller listens to.
package location

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

var errGeocoderKey = errors.New("geocoder api key is not configured")

// geocode is swapped in tests.
var geocode = func(apiKey, city, country string) (weather.Coordinates, error) {
	geocoder.ApiKey = apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return weather.Coordinates{}, err
	}
	return weather.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}

// StaticLocator reports one fixed position every time a fix is requested.
type StaticLocator struct {
	at weather.Coordinates

	mu      sync.Mutex
	handler func(weather.Coordinates)
}

func NewStatic(at weather.Coordinates) *StaticLocator {
	return &StaticLocator{at: at}
}

// NewGeocoded resolves city and country to coordinates once, through the
// Google geocoding API.
func NewGeocoded(apiKey, city, country string) (*StaticLocator, error) {
	if apiKey == "" {
		return nil, errGeocoderKey
	}
	at, err := geocode(apiKey, city, country)
	if err != nil {
		return nil, fmt.Errorf("geocode %s, %s: %w", city, country, err)
	}
	if err := validate.Struct(at); err != nil {
		return nil, fmt.Errorf("geocode %s, %s: %w", city, country, err)
	}
	log.Printf("INFO: geocoded %s, %s to %s", city, country, at)
	return NewStatic(at), nil
}

func (l *StaticLocator) Listen(handler func(weather.Coordinates)) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// RequestLocation delivers the fixed position asynchronously.
func (l *StaticLocator) RequestLocation(context.Context) error {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		return nil
	}
	go h(l.at)
	return nil
}

var _ weather.Locator = (*StaticLocator)(nil)
