package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRelayCollectors(t *testing.T) {
	req := require.New(t)

	// Given a sent message and a connected session
	MessagesSent.WithLabelValues("sent").Inc()
	SessionConnected.Set(1)
	defer SessionConnected.Set(0)

	// When scraping the handler
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Then both series are exposed
	req.Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Contains(string(body), `relay_messages_sent_total{result="sent"}`)
	req.Contains(string(body), "relay_session_connected 1")
}

func TestReconnectCounterByCause(t *testing.T) {
	before := testutil.ToFloat64(Reconnects.WithLabelValues("connection_lost"))
	Reconnects.WithLabelValues("connection_lost").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(Reconnects.WithLabelValues("connection_lost")))
}
