// Package envconf loads configuration structs from environment variables.
//
// A .env file in the working directory is loaded once per process before the
// first parse; missing files are ignored. Struct fields are bound with
// `env` and `envDefault` tags:
//
//	type CacheConfig struct {
//	    TTL        time.Duration `env:"AUTHZ_CACHE_TTL" envDefault:"5m"`
//	    MaxEntries int           `env:"AUTHZ_CACHE_MAX_ENTRIES" envDefault:"5000"`
//	}
//
//	var cfg CacheConfig
//	if err := envconf.Load(&cfg); err != nil {
//	    // Handle error
//	}
//
// Unlike process-lifetime config caches, Load re-parses on every call so
// tests can override variables between loads.
package envconf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNilPointer is returned when Load receives a nil target.
var ErrNilPointer = errors.New("envconf: nil config pointer")

var dotenvOnce sync.Once

// Load parses environment variables into the provided struct.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return fmt.Errorf("envconf: parse %T: %w", *v, err)
	}

	return nil
}
