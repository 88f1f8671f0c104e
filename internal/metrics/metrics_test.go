package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestRecordNotification(t *testing.T) {
	m := New()
	m.RecordNotification(OutcomeStored, 2*time.Millisecond)
	m.RecordNotification(OutcomeStored, time.Millisecond)
	m.RecordNotification(OutcomeUnparsed, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues(OutcomeStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues(OutcomeUnparsed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.processDuration))
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordParseFailure("AmountNotFound")
	m.RecordDuplicate("pending_review")
	m.RecordResolution("KEEP_FIRST")
	m.RecordDepositMatch("medium")
	m.RecordDeactivation()
	m.RecordMappingApplied(true)
	m.RecordMappingApplied(false)
	m.RecordCatalogReload(nil)
	m.RecordCatalogReload(errors.New("bad yaml"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseFailures.WithLabelValues("AmountNotFound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicates.WithLabelValues("pending_review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("KEEP_FIRST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.depositMatches.WithLabelValues("medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deactivations))
	assert.Equal(t, 2, testutil.CollectAndCount(m.mappingsApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.catalogReloads.WithLabelValues("error")))

	expected := `
# HELP notiledger_deposit_pattern_deactivations_total Deposit patterns turned off for failing.
# TYPE notiledger_deposit_pattern_deactivations_total counter
notiledger_deposit_pattern_deactivations_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "notiledger_deposit_pattern_deactivations_total"))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordNotification(OutcomeDeposit, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `notiledger_notifications_total{outcome="deposit"} 1`)
}
