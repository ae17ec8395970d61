package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

// cachedRecord is the GORM model behind GormStore.
type cachedRecord struct {
	ID                              uint   `gorm:"primaryKey"`
	CityName                        string `gorm:"uniqueIndex;not null"`
	CurrentTemperatureC             float64
	MaxTemperatureTodayC            float64
	MinTemperatureTodayC            float64
	TomorrowMaxTemperatureC         float64
	DayAfterTomorrowMaxTemperatureC float64
	UpdatedAt                       time.Time
}

func (cachedRecord) TableName() string { return "weather_records" }

func (r cachedRecord) toRecord() weather.Record {
	return weather.Record{
		CityName:                        r.CityName,
		CurrentTemperatureC:             r.CurrentTemperatureC,
		MaxTemperatureTodayC:            r.MaxTemperatureTodayC,
		MinTemperatureTodayC:            r.MinTemperatureTodayC,
		TomorrowMaxTemperatureC:         r.TomorrowMaxTemperatureC,
		DayAfterTomorrowMaxTemperatureC: r.DayAfterTomorrowMaxTemperatureC,
	}
}

// GormStore keeps the single cached record in a GORM-managed table.
type GormStore struct {
	mu sync.RWMutex
	db *gorm.DB
}

// OpenGormSQLite opens an SQLite database through GORM.
func OpenGormSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// NewGormStore migrates the schema and wraps db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&cachedRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps in-memory DBs alive.
	sqlDB.SetMaxOpenConns(1)
	return &GormStore{db: db}, nil
}

// Upsert updates or inserts rec and removes every other city in one transaction.
func (s *GormStore) Upsert(ctx context.Context, rec weather.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []cachedRecord
		if err := tx.Where("city_name = ?", rec.CityName).Limit(1).Find(&existing).Error; err != nil {
			return err
		}

		if len(existing) == 0 {
			row := cachedRecord{
				CityName:                        rec.CityName,
				CurrentTemperatureC:             rec.CurrentTemperatureC,
				MaxTemperatureTodayC:            rec.MaxTemperatureTodayC,
				MinTemperatureTodayC:            rec.MinTemperatureTodayC,
				TomorrowMaxTemperatureC:         rec.TomorrowMaxTemperatureC,
				DayAfterTomorrowMaxTemperatureC: rec.DayAfterTomorrowMaxTemperatureC,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		} else {
			// A map is used so zero temperatures are written too.
			if err := tx.Model(&existing[0]).Updates(map[string]any{
				"current_temperature_c":                rec.CurrentTemperatureC,
				"max_temperature_today_c":              rec.MaxTemperatureTodayC,
				"min_temperature_today_c":              rec.MinTemperatureTodayC,
				"tomorrow_max_temperature_c":           rec.TomorrowMaxTemperatureC,
				"day_after_tomorrow_max_temperature_c": rec.DayAfterTomorrowMaxTemperatureC,
			}).Error; err != nil {
				return err
			}
		}

		return tx.Where("city_name <> ?", rec.CityName).Delete(&cachedRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", weather.ErrPersistence, rec.CityName, err)
	}
	return nil
}

// LoadCurrent returns the cached record.
func (s *GormStore) LoadCurrent(ctx context.Context) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []cachedRecord
	if err := s.db.WithContext(ctx).Order("id").Limit(1).Find(&rows).Error; err != nil {
		return weather.Record{}, fmt.Errorf("%w: load: %w", weather.ErrPersistence, err)
	}
	if len(rows) == 0 {
		return weather.Record{}, ErrNotFound
	}
	return rows[0].toRecord(), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
