package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
)

// AuthStore loads and saves the opaque credential state of the session.
type AuthStore interface {
	Load(ctx context.Context) (*store.Device, error)
	Save(ctx context.Context, device *store.Device) error
	Close() error
}

type AuthConfig struct {
	Driver string
	Dir    string
	URI    string
}

// SQLAuthStore keeps whatsmeow's device store in SQLite under Dir or in
// Postgres at URI.
type SQLAuthStore struct {
	container *sqlstore.Container
}

func OpenAuthStore(ctx context.Context, cfg AuthConfig, logLevel string) (*SQLAuthStore, error) {
	driver := normalizeDatastoreDriver(cfg.Driver)

	var dsn string
	switch driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Dir) == "" {
			return nil, errors.New("auth state directory is empty")
		}
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("create auth state directory: %w", err)
		}
		dsn = "file:" + filepath.Join(cfg.Dir, "session.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	case "pgx":
		if strings.TrimSpace(cfg.URI) == "" {
			return nil, errors.New("AUTH_STATE_URI is required for the postgres auth state driver")
		}
		dsn = normalizeDatastoreDSN(driver, cfg.URI)
	default:
		return nil, fmt.Errorf("unsupported auth state driver %s", cfg.Driver)
	}

	log.Print(nil).Info("Initializing WhatsApp auth state with driver=" + driver)

	container, err := sqlstore.New(ctx, driver, dsn, log.WhatsApp("Database", logLevel))
	if err != nil {
		return nil, fmt.Errorf("open auth state: %w", err)
	}
	return &SQLAuthStore{container: container}, nil
}

// Load returns the paired device, or a fresh unpaired one.
func (s *SQLAuthStore) Load(ctx context.Context) (*store.Device, error) {
	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return device, nil
}

func (s *SQLAuthStore) Save(ctx context.Context, device *store.Device) error {
	if device == nil {
		return errors.New("device is nil")
	}
	if device.ID == nil {
		// whatsmeow only persists paired devices
		return nil
	}
	return device.Save(ctx)
}

func (s *SQLAuthStore) Close() error {
	return s.container.Close()
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	case "", "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(driver)
	}
}

func normalizeDatastoreDSN(driver string, dsn string) string {
	if driver != "pgx" {
		return dsn
	}
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = appendParam(dsn, "prefer_simple_protocol", "true")
	dsn = appendParam(dsn, "statement_cache_capacity", "0")
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}
