package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ledger.ErrInsufficientBalance, "InsufficientBalance"},
		{fmt.Errorf("wrap: %w", ledger.ErrNotOwner), "NotOwner"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		if got := resultLabel(tt.err); got != tt.want {
			t.Errorf("resultLabel(%v): got %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestHandler_ExposesLedgerMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	RecordOperation("transfer", nil)
	ObserveLedger(ledger.Metadata{TotalSupply: 1000, Accounts: 2, HistoryLen: 1})

	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		`tokenledger_operations_total{op="transfer",result="ok"}`,
		"tokenledger_total_supply 1000",
		"tokenledger_accounts 2",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
