package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

// DefaultWeatherAPIBaseURL is the WeatherAPI.com v1 root.
const DefaultWeatherAPIBaseURL = "https://api.weatherapi.com/v1"

const forecastDays = 3

var errNoAPIKey = errors.New("weatherapi api key is not configured")

// WeatherAPIProvider fetches current conditions and a 3-day forecast from WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

type Option func(*WeatherAPIProvider)

// WithBaseURL points the provider at another API root (tests, proxies).
func WithBaseURL(u string) Option {
	return func(p *WeatherAPIProvider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

func WithBackoff(b BackoffConfig) Option {
	return func(p *WeatherAPIProvider) {
		p.httpCfg.Backoff = b
	}
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	p := &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: DefaultWeatherAPIBaseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: DefaultBackoff(),
		},
		circuit: newBreaker("weatherapi"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

// Fetch requests the forecast for at and maps it to a weather.Record.
// Failures wrap weather.ErrTransport or weather.ErrParse.
func (p *WeatherAPIProvider) Fetch(ctx context.Context, at weather.Coordinates) (weather.Record, error) {
	ctx, span := otel.Tracer("weather-sync").Start(ctx, "weatherapi: fetch forecast",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Float64("geo.lat", at.Latitude),
		attribute.Float64("geo.lon", at.Longitude),
	)

	rec, err := p.fetch(ctx, at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forecast fetch failed")
		return weather.Record{}, err
	}

	span.SetAttributes(attribute.String("weather.city", rec.CityName))
	span.SetStatus(codes.Ok, "")
	return rec, nil
}

func (p *WeatherAPIProvider) fetch(ctx context.Context, at weather.Coordinates) (weather.Record, error) {
	if p.apiKey == "" {
		return weather.Record{}, fmt.Errorf("%w: %w", weather.ErrTransport, errNoAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", at.Query())
		values.Set("days", fmt.Sprint(forecastDays))

		u := fmt.Sprintf("%s/forecast.json?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Record{}, fmt.Errorf("%w: %w", weather.ErrTransport, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Record{}, fmt.Errorf("%w: %w", weather.ErrParse, err)
	}
	return parseForecast(payload)
}

// parseForecast maps a forecast.json body. current.temp_c and a non-empty
// location.name are required; forecast days that are missing or malformed
// leave their fields at 0.
func parseForecast(payload map[string]any) (weather.Record, error) {
	temp, ok := lookupFloat(getMap(payload, "current"), "temp_c")
	if !ok {
		return weather.Record{}, fmt.Errorf("%w: missing current.temp_c", weather.ErrParse)
	}
	city := getString(getMap(payload, "location"), "name")
	if strings.TrimSpace(city) == "" {
		return weather.Record{}, fmt.Errorf("%w: missing location.name", weather.ErrParse)
	}

	rec := weather.Record{
		CityName:            city,
		CurrentTemperatureC: temp,
	}

	days := getArray(getMap(payload, "forecast"), "forecastday")
	if len(days) < forecastDays {
		return rec, nil
	}

	today := dayOf(days[0])
	maxT, okMax := lookupFloat(today, "maxtemp_c")
	minT, okMin := lookupFloat(today, "mintemp_c")
	if okMax && okMin {
		rec.MaxTemperatureTodayC = maxT
		rec.MinTemperatureTodayC = minT
	}
	if v, ok := lookupFloat(dayOf(days[1]), "maxtemp_c"); ok {
		rec.TomorrowMaxTemperatureC = v
	}
	if v, ok := lookupFloat(dayOf(days[2]), "maxtemp_c"); ok {
		rec.DayAfterTomorrowMaxTemperatureC = v
	}
	return rec, nil
}

func dayOf(entry any) map[string]any {
	m, _ := entry.(map[string]any)
	return getMap(m, "day")
}

func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func getArray(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func lookupFloat(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

var _ weather.Provider = (*WeatherAPIProvider)(nil)
