package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/mosaic"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveTile(&dat.Result{State: dat.StateReady, Bytes: 4096})
	m.ObserveTile(&dat.Result{State: dat.StateReady, Bytes: 4096, Reused: true})
	m.ObserveTile(&dat.Result{State: dat.StatePending})
	m.ObserveTile(&dat.Result{State: dat.StatePending})
	m.ObserveBlock(mosaic.CoverageFull, time.Millisecond)
	m.ObserveFetch(elevation.CellID{Lat: 1, Lon: 2}, "corrupt", time.Second)
	m.ObserveRequest("/tiles/{name}", http.StatusAccepted)

	require.Equal(t, 2.0, testutil.ToFloat64(m.tiles.WithLabelValues("ready")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.tiles.WithLabelValues("pending")))
	require.Equal(t, 4096.0, testutil.ToFloat64(m.tileBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("corrupt")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/tiles/{name}", "202")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "terrain_block_encode_seconds_bucket"))
	require.True(t, strings.Contains(body, `terrain_tiles_total{state="pending"} 2`))
}
