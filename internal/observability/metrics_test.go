package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFunctions(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.ItemsProcessed.WithLabelValues(OutcomePriced))
	RecordItem(OutcomePriced)
	if got := testutil.ToFloat64(DefaultMetrics.ItemsProcessed.WithLabelValues(OutcomePriced)); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}

	RecordMilestone(2.5)
	if got := testutil.ToFloat64(DefaultMetrics.MilestonesFired.WithLabelValues("2.5")); got < 1 {
		t.Errorf("expected milestone 2.5 counted, got %v", got)
	}

	errBefore := testutil.ToFloat64(DefaultMetrics.NotifySent.WithLabelValues("error"))
	RecordNotify(errors.New("boom"))
	if got := testutil.ToFloat64(DefaultMetrics.NotifySent.WithLabelValues("error")); got != errBefore+1 {
		t.Errorf("expected notify error counted")
	}

	RecordTick(7, 0.25, 1700000000)
	if got := testutil.ToFloat64(DefaultMetrics.DueSelected); got != 7 {
		t.Errorf("expected due gauge 7, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	RecordDump()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "callwatch_alerts_dumps_total") {
		t.Error("expected dump counter in exposition")
	}
}
