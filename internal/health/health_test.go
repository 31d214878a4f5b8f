package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	r := NewReporter("en-us", func() []string { return []string{"apple_say", "kokoro"} }, func() bool { return true })
	r.accelerator = func() bool { return false }

	got := r.Report(context.Background())
	assert.Equal(t, Report{OK: true, Lang: "en-us", Providers: []string{"apple_say", "kokoro"}, MP3: true}, got)
}

func TestReport_CloneStatus(t *testing.T) {
	r := NewReporter("en-us", nil, nil).WithCloneStatus(func() string { return "failed: speakers: connection refused" })
	r.accelerator = nil

	got := r.Report(context.Background())
	assert.Equal(t, "failed: speakers: connection refused", got.Clone)

	body, err := json.Marshal(NewReporter("en-us", nil, nil).Report(context.Background()))
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"clone"`, "omitted when clone is disabled")

	r.clone = func() string { panic("state lock poisoned") }
	assert.Empty(t, r.Report(context.Background()).Clone)
}

func TestReport_FailingChecksReportFalse(t *testing.T) {
	r := NewReporter("en-us", func() []string { panic("registry gone") }, func() bool { panic("lookup exploded") })
	r.accelerator = func() bool { panic("driver crashed") }

	got := r.Report(context.Background())
	assert.True(t, got.OK)
	assert.Empty(t, got.Providers)
	assert.NotNil(t, got.Providers)
	assert.False(t, got.MP3)
	assert.False(t, got.Accelerator)
}

func TestServer_Routes(t *testing.T) {
	r := NewReporter("en-us", func() []string { return []string{"kokoro"} }, func() bool { return false })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("parrot_up 1\n")) })
	s := New(0, r, metrics)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	s.SetReady(true)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, report.OK)
	assert.Equal(t, []string{"kokoro"}, report.Providers)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
