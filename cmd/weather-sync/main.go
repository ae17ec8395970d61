package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpapi "github.com/i474232898/weather-cache-sync/internal/api/http"
	"github.com/i474232898/weather-cache-sync/internal/config"
	"github.com/i474232898/weather-cache-sync/internal/connectivity"
	"github.com/i474232898/weather-cache-sync/internal/location"
	"github.com/i474232898/weather-cache-sync/internal/mqtt"
	"github.com/i474232898/weather-cache-sync/internal/observability"
	"github.com/i474232898/weather-cache-sync/internal/scheduler"
	"github.com/i474232898/weather-cache-sync/internal/store"
	"github.com/i474232898/weather-cache-sync/internal/weather"
	"github.com/i474232898/weather-cache-sync/internal/weather/providers"
)

const serviceName = "weather-sync"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	// Shared HTTP client for outbound forecast calls.
	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	backoff := providers.DefaultBackoff()
	backoff.MaxRetries = cfg.FetchMaxRetries
	provider := providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey,
		providers.WithBaseURL(cfg.WeatherAPIBaseURL),
		providers.WithBackoff(backoff),
	)

	cache, err := store.Open(cfg.CacheBackend, cfg.CachePath)
	if err != nil {
		log.Fatalf("failed to open %s cache: %v", cfg.CacheBackend, err)
	}
	defer cache.Close()

	probe := connectivity.NewProbe(cfg.ReachabilityTarget, cfg.ReachabilityTimeout)
	// Seed the probe so observers start from a real status.
	probe.Poll(ctx)

	var broker *mqtt.Client
	if cfg.MQTTBrokerURL != "" {
		broker, err = mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			log.Fatalf("failed to connect to mqtt broker: %v", err)
		}
		defer broker.Close()
	}

	locator, err := newLocator(cfg, broker)
	if err != nil {
		log.Fatalf("failed to set up %s location source: %v", cfg.LocationSource, err)
	}

	ctrl := weather.NewController(provider, cache, probe, locator,
		weather.WithObserver(observability.NewMetrics()),
		weather.WithStaleRejection(cfg.RejectStaleFetches),
	)
	if broker != nil {
		sink := mqtt.NewRecordSink(broker, cfg.MQTTWeatherTopic)
		defer sink.Close()
		ctrl.Subscribe(sink.Deliver)
	}

	sched := scheduler.New(cfg.ReachabilityInterval, probe)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	ctrlDone := make(chan error, 1)
	go func() {
		ctrlDone <- ctrl.Run(ctx)
	}()

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, ctrl, probe)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: %s listening on :%s (cache=%s, location=%s)", serviceName, cfg.Port, cfg.CacheBackend, cfg.LocationSource)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	if err := <-ctrlDone; err != nil {
		log.Printf("controller stopped: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("error flushing traces: %v", err)
	}
}

func newLocator(cfg *config.AppConfig, broker *mqtt.Client) (weather.Locator, error) {
	switch cfg.LocationSource {
	case "static":
		if cfg.HasStaticCoordinates() {
			return location.NewStatic(weather.Coordinates{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}), nil
		}
		return location.NewGeocoded(cfg.GeocoderAPIKey, cfg.City, cfg.Country)
	case "mqtt":
		if broker == nil {
			return nil, fmt.Errorf("MQTT_BROKER_URL is not set")
		}
		return location.NewMQTTLocator(broker, cfg.MQTTLocationTopic, cfg.MQTTLocationRequestTopic)
	case "http":
		return location.PushLocator{}, nil
	default:
		return nil, fmt.Errorf("unknown location source %q", cfg.LocationSource)
	}
}
