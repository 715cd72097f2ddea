package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"
)

type VersionStatus struct {
	CurrentVersion string     `json:"current_version"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

type versionFetcher func(ctx context.Context) (*store.WAVersionContainer, error)

// VersionRefresher fetches the latest WhatsApp Web version and applies it
// process-wide. Used after the server reports the client as outdated.
type VersionRefresher struct {
	minInterval time.Duration
	fetch       versionFetcher

	group singleflight.Group

	mu              sync.RWMutex
	lastRefreshedAt *time.Time
	lastError       string
}

func NewVersionRefresher(minInterval time.Duration) *VersionRefresher {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &VersionRefresher{
		minInterval: minInterval,
		fetch: func(ctx context.Context) (*store.WAVersionContainer, error) {
			return whatsmeow.GetLatestVersion(ctx, httpClient)
		},
	}
}

func (r *VersionRefresher) Status() VersionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *time.Time
	if r.lastRefreshedAt != nil {
		t := *r.lastRefreshedAt
		last = &t
	}

	return VersionStatus{
		CurrentVersion: store.GetWAVersion().String(),
		LastRefreshed:  last,
		LastError:      r.lastError,
	}
}

// Refresh is throttled by the minimum interval unless force is set. The bool
// result reports whether a fetch was attempted.
func (r *VersionRefresher) Refresh(ctx context.Context, force bool) (VersionStatus, bool, error) {
	if !force && r.minInterval > 0 {
		r.mu.RLock()
		last := r.lastRefreshedAt
		r.mu.RUnlock()
		if last != nil && time.Since(*last) < r.minInterval {
			return r.Status(), false, nil
		}
	}

	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		latest, err := r.fetch(ctx)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		now := time.Now()
		r.lastRefreshedAt = &now
		if err != nil {
			r.lastError = err.Error()
			return nil, err
		}
		r.lastError = ""
		store.SetWAVersion(*latest)
		return nil, nil
	})
	return r.Status(), true, err
}
