package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOTPIssued()
	c.RecordOTPIssued()
	c.RecordOTPVerification("ok")
	c.RecordOTPVerification("mismatch")
	c.RecordOTPVerification("mismatch")
	c.RecordResetCompleted()
	c.RecordGuardDecision("redirect_login")
	c.RecordLogin("success")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.otpIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.otpVerified.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.otpVerified.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resetCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.guardDecisions.WithLabelValues("redirect_login")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.logins.WithLabelValues("success")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOTPIssued()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "dashboard_otp_issued_total 1"))
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordOTPIssued()
	r.RecordLogin("failure")
}
