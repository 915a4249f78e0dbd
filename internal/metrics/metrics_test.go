package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/members/{memberId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/members/{memberId}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/abc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/members/{memberId}", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecordersAndHandler(t *testing.T) {
	RecordGrant("granted")
	RecordXP("badge", 25)
	RecordXP("badge", 0)
	RecordReferral("first")
	RecordNotification("notifyBadgeEarned", "ok")
	RecordReconcile(true, 2)

	assert.GreaterOrEqual(t, testutil.ToFloat64(xpAwarded.WithLabelValues("badge")), 25.0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wannagonna_rewards_badge_grants_total"))
}
