package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/i474232898/weather-cache-sync/internal/weather"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS weather_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	city_name TEXT NOT NULL UNIQUE,
	current_temperature_c REAL NOT NULL DEFAULT 0,
	max_temperature_today_c REAL NOT NULL DEFAULT 0,
	min_temperature_today_c REAL NOT NULL DEFAULT 0,
	tomorrow_max_temperature_c REAL NOT NULL DEFAULT 0,
	day_after_tomorrow_max_temperature_c REAL NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);`

// SQLiteStore keeps the single cached record in SQLite using the pure Go
// modernc.org/sqlite driver.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Printf("INFO: could not set WAL mode: %v", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert writes rec and deletes every other city inside one transaction.
// On failure the transaction is rolled back and the previous record stays.
func (s *SQLiteStore) Upsert(ctx context.Context, rec weather.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.upsertTx(ctx, rec); err != nil {
		return fmt.Errorf("%w: upsert %s: %w", weather.ErrPersistence, rec.CityName, err)
	}
	return nil
}

func (s *SQLiteStore) upsertTx(ctx context.Context, rec weather.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO weather_records(
			city_name, current_temperature_c, max_temperature_today_c, min_temperature_today_c,
			tomorrow_max_temperature_c, day_after_tomorrow_max_temperature_c, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(city_name) DO UPDATE SET
			current_temperature_c = excluded.current_temperature_c,
			max_temperature_today_c = excluded.max_temperature_today_c,
			min_temperature_today_c = excluded.min_temperature_today_c,
			tomorrow_max_temperature_c = excluded.tomorrow_max_temperature_c,
			day_after_tomorrow_max_temperature_c = excluded.day_after_tomorrow_max_temperature_c,
			updated_at = excluded.updated_at`,
		rec.CityName, rec.CurrentTemperatureC, rec.MaxTemperatureTodayC, rec.MinTemperatureTodayC,
		rec.TomorrowMaxTemperatureC, rec.DayAfterTomorrowMaxTemperatureC,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM weather_records WHERE city_name <> ?`, rec.CityName); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadCurrent returns the cached record.
func (s *SQLiteStore) LoadCurrent(ctx context.Context) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec weather.Record
	err := s.db.QueryRowContext(ctx, `SELECT city_name, current_temperature_c, max_temperature_today_c,
			min_temperature_today_c, tomorrow_max_temperature_c, day_after_tomorrow_max_temperature_c
		FROM weather_records ORDER BY id LIMIT 1`).Scan(
		&rec.CityName, &rec.CurrentTemperatureC, &rec.MaxTemperatureTodayC,
		&rec.MinTemperatureTodayC, &rec.TomorrowMaxTemperatureC, &rec.DayAfterTomorrowMaxTemperatureC)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Record{}, ErrNotFound
	}
	if err != nil {
		return weather.Record{}, fmt.Errorf("%w: load: %w", weather.ErrPersistence, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
