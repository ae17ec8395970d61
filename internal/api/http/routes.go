package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-cache-sync/internal/connectivity"
	"github.com/i474232898/weather-cache-sync/internal/weather"
)

var validate = validator.New()

// Display is the controller surface the API needs: the value currently on
// display and a way to push a location fix.
type Display interface {
	Latest() (weather.Record, bool)
	LocationUpdated(at weather.Coordinates)
}

// Connectivity reports the last polled reachability.
type Connectivity interface {
	Status() connectivity.Status
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, display Display, conn Connectivity) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		rec, ok := display.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no weather data yet")
		}
		return c.JSON(rec)
	})

	v1.Post("/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		at := req.toCoordinates()
		display.LocationUpdated(at)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"accepted": true,
			"location": at,
		})
	})

	v1.Get("/connectivity", func(c *fiber.Ctx) error {
		st := conn.Status()
		return c.JSON(fiber.Map{
			"reachable": st.Available(),
			"status":    st.String(),
		})
	})
}

// locationRequest is the body of POST /api/v1/location.
type locationRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

func (r locationRequest) toCoordinates() weather.Coordinates {
	return weather.Coordinates{Latitude: *r.Lat, Longitude: *r.Lon}
}
