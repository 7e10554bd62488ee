// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, reg prometheus.Gatherer, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestPvtCollectorObserve(t *testing.T) {
	assert := assert.New(t)
	reg := prometheus.NewRegistry()
	c, err := NewPvtCollector(reg)
	require.NoError(t, err)

	c.ObserveEpoch("converged", 8, 0.0004)
	c.ObserveEpoch("converged", 9, 0.0006)
	c.ObserveEpoch("no_solution", 2, 0.0001)
	c.ObserveSolution(1.8, 1.5, 3)
	c.IncChannelError("EPHEM_ERR")
	c.IncChannelError("EPHEM_ERR")
	c.IncChannelError("RAIM_ERR")

	assert.Equal(2.0, testutil.ToFloat64(c.Epochs.WithLabelValues("converged")))
	assert.Equal(1.0, testutil.ToFloat64(c.Epochs.WithLabelValues("no_solution")))
	assert.Equal(2.0, testutil.ToFloat64(c.ChannelErrors.WithLabelValues("EPHEM_ERR")))
	assert.Equal(1.0, testutil.ToFloat64(c.ChannelErrors.WithLabelValues("RAIM_ERR")))
	assert.Equal(2.0, testutil.ToFloat64(c.NavChannels))
	assert.Equal(1.8, testutil.ToFloat64(c.GDOP))
	assert.Equal(1.5, testutil.ToFloat64(c.PDOP))
	assert.Equal(3.0, testutil.ToFloat64(c.StaleTicks))

	hist := findMetric(t, reg, "pvt_epoch_duration_seconds").GetMetric()[0].GetHistogram()
	assert.Equal(uint64(3), hist.GetSampleCount())
	assert.InDelta(0.0011, hist.GetSampleSum(), 1e-12)
}

func TestPvtCollectorReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPvtCollector(reg)
	require.NoError(t, err)
	first.ObserveEpoch("converged", 5, 0.001)

	// A second collector on the same registry reuses the registered metrics
	second, err := NewPvtCollector(reg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Epochs.WithLabelValues("converged")))
}

func TestPvtCollectorNil(t *testing.T) {
	var c *PvtCollector
	assert.NotPanics(t, func() {
		c.ObserveEpoch("converged", 5, 0.001)
		c.ObserveSolution(1, 1, 0)
		c.IncChannelError("POS_ERR")
	})
}

func TestPvtCollectorHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPvtCollector(reg)
	require.NoError(t, err)
	c.ObserveSolution(2.25, 1.75, 0)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pvt_gdop 2.25")
	assert.Contains(t, string(body), "pvt_pdop 1.75")
}
