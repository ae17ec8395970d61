package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

const fullForecast = `{
  "location": {"name": "Paris", "country": "France"},
  "current": {"temp_c": 14.5},
  "forecast": {"forecastday": [
    {"day": {"maxtemp_c": 18.1, "mintemp_c": 9.4}},
    {"day": {"maxtemp_c": 19.0, "mintemp_c": 10.0}},
    {"day": {"maxtemp_c": 16.2, "mintemp_c": 8.8}}
  ]}
}`

func newTestProvider(t *testing.T, h http.HandlerFunc, opts ...Option) *WeatherAPIProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBaseURL(srv.URL + "/v1/")}, opts...)
	return NewWeatherAPIProvider(srv.Client(), "test-key", opts...)
}

func TestWeatherAPIFetchFullForecast(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "test-key" || q.Get("q") != "48.8566,2.3522" || q.Get("days") != "3" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fullForecast))
	})

	rec, err := p.Fetch(context.Background(), weather.Coordinates{Latitude: 48.8566, Longitude: 2.3522})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := weather.Record{
		CityName:                        "Paris",
		CurrentTemperatureC:             14.5,
		MaxTemperatureTodayC:            18.1,
		MinTemperatureTodayC:            9.4,
		TomorrowMaxTemperatureC:         19.0,
		DayAfterTomorrowMaxTemperatureC: 16.2,
	}
	if rec != want {
		t.Fatalf("got %+v, want %+v", rec, want)
	}
}

func TestParseForecast(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    weather.Record
		wantErr error
	}{
		{
			name: "fewer than three days keeps defaults",
			body: `{"location":{"name":"Oslo"},"current":{"temp_c":-2},"forecast":{"forecastday":[{"day":{"maxtemp_c":1,"mintemp_c":-5}}]}}`,
			want: weather.Record{CityName: "Oslo", CurrentTemperatureC: -2},
		},
		{
			name: "no forecast block",
			body: `{"location":{"name":"Oslo"},"current":{"temp_c":3}}`,
			want: weather.Record{CityName: "Oslo", CurrentTemperatureC: 3},
		},
		{
			name: "today needs both max and min",
			body: `{"location":{"name":"Rome"},"current":{"temp_c":20},"forecast":{"forecastday":[
				{"day":{"maxtemp_c":25}},{"day":{"maxtemp_c":26}},{"day":{"maxtemp_c":27}}]}}`,
			want: weather.Record{CityName: "Rome", CurrentTemperatureC: 20, TomorrowMaxTemperatureC: 26, DayAfterTomorrowMaxTemperatureC: 27},
		},
		{
			name: "malformed day entries are skipped",
			body: `{"location":{"name":"Rome"},"current":{"temp_c":20},"forecast":{"forecastday":[
				{"day":{"maxtemp_c":25,"mintemp_c":15}},"oops",{"day":{"maxtemp_c":"hot"}}]}}`,
			want: weather.Record{CityName: "Rome", CurrentTemperatureC: 20, MaxTemperatureTodayC: 25, MinTemperatureTodayC: 15},
		},
		{
			name:    "missing current temperature",
			body:    `{"location":{"name":"Rome"},"current":{}}`,
			wantErr: weather.ErrParse,
		},
		{
			name:    "temperature of wrong type",
			body:    `{"location":{"name":"Rome"},"current":{"temp_c":"20"}}`,
			wantErr: weather.ErrParse,
		},
		{
			name:    "missing location name",
			body:    `{"location":{},"current":{"temp_c":20}}`,
			wantErr: weather.ErrParse,
		},
		{
			name:    "empty location name",
			body:    `{"location":{"name":""},"current":{"temp_c":20}}`,
			wantErr: weather.ErrParse,
		},
		{
			name:    "not json",
			body:    `<html>oops</html>`,
			wantErr: weather.ErrParse,
		},
		{
			name:    "json array",
			body:    `[1,2,3]`,
			wantErr: weather.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			got, err := p.Fetch(context.Background(), weather.Coordinates{Latitude: 1, Longitude: 2})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWeatherAPIFetchNon2xxIsTransportError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusBadGateway} {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"nope"}}`))
		})
		_, err := p.Fetch(context.Background(), weather.Coordinates{})
		if !errors.Is(err, weather.ErrTransport) {
			t.Fatalf("status %d: expected ErrTransport, got %v", status, err)
		}
	}
}

func TestWeatherAPIFetchUnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	p := NewWeatherAPIProvider(&http.Client{Timeout: time.Second}, "k", WithBaseURL(addr))
	_, err := p.Fetch(context.Background(), weather.Coordinates{})
	if !errors.Is(err, weather.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestWeatherAPIFetchMissingKey(t *testing.T) {
	p := NewWeatherAPIProvider(http.DefaultClient, "")
	_, err := p.Fetch(context.Background(), weather.Coordinates{})
	if !errors.Is(err, weather.ErrTransport) || !errors.Is(err, errNoAPIKey) {
		t.Fatalf("expected wrapped errNoAPIKey, got %v", err)
	}
}

func TestWeatherAPIFetchDoesNotRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := p.Fetch(context.Background(), weather.Coordinates{}); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
}

func TestWeatherAPIFetchRetriesWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(fullForecast))
	}, WithBackoff(BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}))

	rec, err := p.Fetch(context.Background(), weather.Coordinates{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.CityName != "Paris" || calls.Load() != 3 {
		t.Fatalf("unexpected result %+v after %d calls", rec, calls.Load())
	}
}
