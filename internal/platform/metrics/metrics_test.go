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

	m.ObserveOperation("approve", OutcomeOK, 10*time.Millisecond)
	m.ObserveOperation("approve", OutcomeConflict, time.Millisecond)
	m.ObserveOperation("approve", OutcomeConflict, time.Millisecond)
	m.IncGenerationAttempt(1, errors.New("503"))
	m.IncGenerationAttempt(2, nil)
	m.IncPublish(true)
	m.IncPublish(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("approve", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("approve", OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationAttempts.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationAttempts.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Publishes.WithLabelValues("true")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
