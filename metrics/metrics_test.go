package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRead(evm.FunctionGetListing, nil)
	m.ObserveRead(evm.FunctionGetListing, nil)
	m.ObserveRead(evm.FunctionTokenURI, errors.New("boom"))
	m.ObserveTx(storefront.TxKindBuy, evm.TxConfirmed)
	m.ObserveTx(storefront.TxKindApprove, evm.TxFailed)
	m.ObserveRecompute()

	body := scrape(t, m)
	assert.Contains(t, body, `storefront_chain_reads_total{method="getListing",outcome="ok"} 2`)
	assert.Contains(t, body, `storefront_chain_reads_total{method="tokenURI",outcome="error"} 1`)
	assert.Contains(t, body, `storefront_transactions_total{kind="buy",outcome="ok"} 1`)
	assert.Contains(t, body, `storefront_transactions_total{kind="approve",outcome="failed"} 1`)
	assert.Contains(t, body, "storefront_catalog_recomputations_total 1")
}

func TestMetrics_PurchaseSteps(t *testing.T) {
	m := New()

	approve := storefront.TransactionContext{Kind: storefront.TxKindApprove, Duration: 300 * time.Millisecond}
	require.NoError(t, m.ObserveSubmitted(approve))
	approve.Duration = 4 * time.Second
	require.NoError(t, m.ObserveConfirmed(approve))
	require.NoError(t, m.ObserveFailed(storefront.TransactionFailureContext{
		Kind:     storefront.TxKindBuy,
		Error:    errors.New("reverted"),
		Duration: time.Second,
	}))

	body := scrape(t, m)
	assert.Contains(t, body, `storefront_purchase_step_seconds_count{kind="approve",stage="submitted"} 1`)
	assert.Contains(t, body, `storefront_purchase_step_seconds_bucket{kind="approve",stage="submitted",le="0.5"} 1`)
	assert.Contains(t, body, `storefront_purchase_step_seconds_bucket{kind="approve",stage="confirmed",le="2.5"} 0`)
	assert.Contains(t, body, `storefront_purchase_step_seconds_count{kind="approve",stage="confirmed"} 1`)
	assert.Contains(t, body, `storefront_purchase_step_seconds_count{kind="buy",stage="failed"} 1`)
}

func TestMetrics_IncludesRuntimeCollectors(t *testing.T) {
	body := scrape(t, New())
	assert.Contains(t, body, "go_goroutines")
}
