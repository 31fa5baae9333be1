package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/obs"
)

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("tours_test", registry)
	obs.MustRegisterDomainMetrics("tours_test", registry)

	obs.IncCounter(obs.BookingReconcileTotal, "created")
	obs.Observe(obs.CartMetadataSlots, 2)
	obs.Inc(obs.GatewayMisconfigurationTotal)

	require.Equal(t, 1.0, testutil.ToFloat64(obs.BookingReconcileTotal.WithLabelValues("created")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.GatewayMisconfigurationTotal))
	require.Equal(t, 1, testutil.CollectAndCount(obs.CartMetadataSlots))
}

func TestNilCollectorsAreIgnored(t *testing.T) {
	require.NotPanics(t, func() {
		obs.IncCounter(nil, "x")
		obs.Inc(nil)
		obs.Observe(nil, 1)
	})
}

func TestQueryName(t *testing.T) {
	require.Equal(t, "InsertBooking", obs.QueryName("-- name: InsertBooking :one\nINSERT INTO bookings"))
	require.Equal(t, "", obs.QueryName("SELECT 1"))
}
