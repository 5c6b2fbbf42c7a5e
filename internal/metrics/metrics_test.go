package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RPCCall("rsk", "decimals", nil)
	m.RPCCall("rsk", "decimals", errors.New("boom"))
	m.TVLComputed("rsk", time.Second, errors.New("boom"))
	m.Snapshot("rsk", 4_200_000, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rpcCalls.WithLabelValues("rsk", "decimals")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpcErrors.WithLabelValues("rsk", "decimals")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tvlFailures.WithLabelValues("rsk")))
	assert.Equal(t, 4_200_000.0, testutil.ToFloat64(m.tvlBlock.WithLabelValues("rsk")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tvlAssets.WithLabelValues("rsk")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RPCCall("rsk", "decimals", nil)
		m.TVLComputed("rsk", time.Second, nil)
		m.Snapshot("rsk", 1, 1)
	})
}
