package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	WeatherAPIKey      string        `validate:"required"`
	WeatherAPIBaseURL  string        `validate:"required,url"`
	HTTPTimeout        time.Duration `validate:"gt=0"`
	FetchMaxRetries    int           `validate:"gte=0,lte=10"`
	RejectStaleFetches bool

	CacheBackend string `validate:"oneof=gorm sqlite memory"`
	CachePath    string `validate:"required_unless=CacheBackend memory"`

	ReachabilityTarget   string        `validate:"hostname_port"`
	ReachabilityTimeout  time.Duration `validate:"gt=0"`
	ReachabilityInterval time.Duration `validate:"gt=0"`

	LocationSource string   `validate:"oneof=static mqtt http"`
	Latitude       *float64 `validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `validate:"omitempty,gte=-180,lte=180"`
	City           string
	Country        string
	GeocoderAPIKey string

	MQTTBrokerURL            string `validate:"required_if=LocationSource mqtt"`
	MQTTClientID             string
	MQTTLocationTopic        string `validate:"required_if=LocationSource mqtt"`
	MQTTLocationRequestTopic string
	MQTTWeatherTopic         string

	OTLPEndpoint string

	Port string `validate:"required,numeric"`
}

// HasStaticCoordinates reports whether both latitude and longitude are set.
func (c *AppConfig) HasStaticCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// Load reads configuration from the environment (and .env when present)
// with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.WeatherAPIBaseURL = getenvDefault("WEATHERAPI_BASE_URL", "https://api.weatherapi.com/v1")
	cfg.FetchMaxRetries = getenvInt("FETCH_MAX_RETRIES", 0)
	cfg.RejectStaleFetches = getenvBool("REJECT_STALE_FETCHES", false)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.CacheBackend = getenvDefault("CACHE_BACKEND", "gorm")
	cfg.CachePath = getenvDefault("CACHE_PATH", "weather-cache.db")

	cfg.ReachabilityTarget = getenvDefault("REACHABILITY_TARGET", "1.1.1.1:53")
	if cfg.ReachabilityTimeout, err = getenvDuration("REACHABILITY_TIMEOUT", "3s"); err != nil {
		return nil, err
	}
	if cfg.ReachabilityInterval, err = getenvDuration("REACHABILITY_INTERVAL", "30s"); err != nil {
		return nil, err
	}

	cfg.LocationSource = getenvDefault("LOCATION_SOURCE", "static")
	if cfg.Latitude, err = getenvFloat("WEATHER_LOCATION_LAT"); err != nil {
		return nil, err
	}
	if cfg.Longitude, err = getenvFloat("WEATHER_LOCATION_LON"); err != nil {
		return nil, err
	}
	cfg.City = os.Getenv("WEATHER_LOCATION_CITY")
	cfg.Country = os.Getenv("WEATHER_LOCATION_COUNTRY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	cfg.MQTTBrokerURL = os.Getenv("MQTT_BROKER_URL")
	cfg.MQTTClientID = os.Getenv("MQTT_CLIENT_ID")
	cfg.MQTTLocationTopic = getenvDefault("MQTT_LOCATION_TOPIC", "weather-sync/location")
	cfg.MQTTLocationRequestTopic = getenvDefault("MQTT_LOCATION_REQUEST_TOPIC", "weather-sync/location/request")
	cfg.MQTTWeatherTopic = getenvDefault("MQTT_WEATHER_TOPIC", "weather-sync/current")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.Port = getenvDefault("PORT", "8080")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the static location settings.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.LocationSource != "static" {
		return nil
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return fmt.Errorf("invalid configuration: WEATHER_LOCATION_LAT and WEATHER_LOCATION_LON must be set together")
	}
	if !c.HasStaticCoordinates() && strings.TrimSpace(c.City) == "" {
		return fmt.Errorf("invalid configuration: static location needs WEATHER_LOCATION_LAT/LON or WEATHER_LOCATION_CITY")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string) (*float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &f, nil
}
