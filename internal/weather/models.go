package weather

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one snapshot of weather for a single city: current temperature plus
// the short-range forecast shown on the display.
// Records are plain values; every update produces a new Record.
type Record struct {
	CityName                        string  `json:"cityName"`
	CurrentTemperatureC             float64 `json:"currentTemperatureC"`
	MaxTemperatureTodayC            float64 `json:"maxTemperatureTodayC"`
	MinTemperatureTodayC            float64 `json:"minTemperatureTodayC"`
	TomorrowMaxTemperatureC         float64 `json:"tomorrowMaxTemperatureC"`
	DayAfterTomorrowMaxTemperatureC float64 `json:"dayAfterTomorrowMaxTemperatureC"`
}

// Validate checks the record can be used as a cache key.
func (r Record) Validate() error {
	if strings.TrimSpace(r.CityName) == "" {
		return fmt.Errorf("%w: empty city name", ErrInvalidRecord)
	}
	return nil
}

// MergeInto overwrites the numeric fields of existing with the ones carried by r.
// The city name of existing is kept.
func (r Record) MergeInto(existing Record) Record {
	existing.CurrentTemperatureC = r.CurrentTemperatureC
	existing.MaxTemperatureTodayC = r.MaxTemperatureTodayC
	existing.MinTemperatureTodayC = r.MinTemperatureTodayC
	existing.TomorrowMaxTemperatureC = r.TomorrowMaxTemperatureC
	existing.DayAfterTomorrowMaxTemperatureC = r.DayAfterTomorrowMaxTemperatureC
	return existing
}

// Coordinates is a device position as reported by the location provider.
type Coordinates struct {
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Query formats the coordinates the way WeatherAPI expects them in "q".
func (c Coordinates) Query() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

func (c Coordinates) String() string {
	return c.Query()
}
