package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestObserveSale(t *testing.T) {
	before := testutil.ToFloat64(SalesCompleted.WithLabelValues("EUR", "true"))

	ObserveSale("EUR", true, time.Now().Add(-20*time.Millisecond))

	assert.Equal(t, before+1, testutil.ToFloat64(SalesCompleted.WithLabelValues("EUR", "true")))
}

func TestObserveCloseDifference(t *testing.T) {
	ObserveCloseDifference("USD", decimal.RequireFromString("-10.00"))

	assert.Equal(t, -10.0, testutil.ToFloat64(CashCloseDifference.WithLabelValues("USD")))
}
