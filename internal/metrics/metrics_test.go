package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveProcessed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveProcessed("credit", "COMPLETED", 20*time.Millisecond)
	m.ObserveProcessed("credit", "COMPLETED", 30*time.Millisecond)
	m.ObserveProcessed("withdraw", "REFUSED", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.processed.WithLabelValues("credit", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processed.WithLabelValues("withdraw", "REFUSED")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.processDuration))
}

func TestConsumerAndSchedulerGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetConsumerDepth(5, 2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.consumerDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.consumerRunning))

	m.ObserveTick("drained", 3)
	m.ObserveTick("skipped", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.schedulerDrains.WithLabelValues("drained")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.schedulerItems))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_RegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
