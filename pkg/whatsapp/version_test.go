package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/store"
)

func TestVersionRefresher(t *testing.T) {
	req := require.New(t)

	original := store.GetWAVersion()
	t.Cleanup(func() { store.SetWAVersion(original) })

	fetches := 0
	latest := store.WAVersionContainer{2, 3000, 1}
	r := NewVersionRefresher(time.Hour)
	r.fetch = func(ctx context.Context) (*store.WAVersionContainer, error) {
		fetches++
		return &latest, nil
	}

	// Given a first refresh
	status, attempted, err := r.Refresh(context.Background(), false)
	req.NoError(err)
	req.True(attempted)
	req.Equal(latest.String(), status.CurrentVersion)
	req.NotNil(status.LastRefreshed)

	// When refreshing again inside the interval
	_, attempted, err = r.Refresh(context.Background(), false)

	// Then the fetch is throttled unless forced
	req.NoError(err)
	req.False(attempted)
	req.Equal(1, fetches)

	_, attempted, err = r.Refresh(context.Background(), true)
	req.NoError(err)
	req.True(attempted)
	req.Equal(2, fetches)
}

func TestVersionRefresher_RecordsErrors(t *testing.T) {
	req := require.New(t)

	r := NewVersionRefresher(0)
	r.fetch = func(ctx context.Context) (*store.WAVersionContainer, error) {
		return nil, errors.New("upstream unavailable")
	}

	status, attempted, err := r.Refresh(context.Background(), false)
	req.Error(err)
	req.True(attempted)
	req.Equal("upstream unavailable", status.LastError)
}
