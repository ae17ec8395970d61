package store

import (
	"fmt"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendGorm   = "gorm"
)

// Backend is a weather.Store that owns resources to release on shutdown.
type Backend interface {
	weather.Store
	Close() error
}

// Open creates the cache backend named by backend. path is ignored for memory.
func Open(backend, path string) (Backend, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLite(path)
	case BackendGorm:
		db, err := OpenGormSQLite(path)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

var (
	_ Backend = (*MemoryStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*GormStore)(nil)
)
