package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.LoginsStarted.Inc()
	a.Callback(OutcomeSuccess)
	a.Callback(OutcomeInvalidState)
	a.Callback(OutcomeInvalidState)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.LoginsStarted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LoginsStarted))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.CallbackOutcomes.WithLabelValues(OutcomeInvalidState)))
}

func TestObserveExchange(t *testing.T) {
	m := New()
	m.ObserveExchange(time.Now(), nil)
	m.ObserveExchange(time.Now(), errors.New("boom"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.ExchangeDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SessionsExpired.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pingdaily_sessions_expired_total 1")
}

func TestEventMethods(t *testing.T) {
	m := New()
	m.LoginStarted()
	m.SessionExpired()
	m.LoggedOut()
	m.LoggedOut()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsExpired))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Logouts))
}
