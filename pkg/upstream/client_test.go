package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

func newTestClient(baseURL string) *Client {
	return New(config.UpstreamConfig{
		BaseURL:         baseURL,
		MediaServiceURL: "https://media.example.com",
		Namespace:       "inspections",
		Token:           "secret-token",
		RequestTimeout:  5 * time.Second,
		MediaTimeout:    5 * time.Second,
		MaxRetries:      2,
		BackoffFactor:   0.001,
		MaxBackoff:      10 * time.Millisecond,
	})
}

func TestGetRecordSendsAuthHeaders(t *testing.T) {
	var gotPath, gotNamespace, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotNamespace = r.Header.Get("en-namespace")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.GetRecord(context.Background(), "/api/v1/records/lcdInspection?tip=aa00")
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, 1, resp.Attempts)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "/api/v1/records/lcdInspection?tip=aa00", gotPath)
	assert.Equal(t, "inspections", gotNamespace)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestGetRecordDoesNotRetryHTTPStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.GetRecord(context.Background(), "/x")
	require.NoError(t, err)

	// Status classification is the caller's concern; one attempt only.
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, resp.OK())
}

func TestGetRecordRetriesTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL)
	_, err := c.GetRecord(context.Background(), "/x")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindTransport, se.Kind)
	assert.Equal(t, 3, se.Attempts)
}

func TestGetRecordStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	_, err := c.GetRecord(ctx, "/x")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestResolveMediaURL(t *testing.T) {
	c := newTestClient("https://records.example.com")

	assert.Equal(t, "https://media.example.com/file?tip=bb01",
		c.ResolveMediaURL("/media/file?tip=bb01"))
	assert.Equal(t, "https://cdn.example.com/direct.jpg",
		c.ResolveMediaURL("https://cdn.example.com/direct.jpg"))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		kind ErrorKind
	}{
		{401, KindUnauthorized},
		{403, KindForbidden},
		{404, KindNotFound},
		{429, KindRateLimited},
		{400, KindClientError},
		{418, KindClientError},
		{500, KindServerError},
		{503, KindServerError},
	}
	for _, tt := range tests {
		se := ClassifyStatus(tt.code, []byte("body"))
		require.NotNil(t, se, "code %d", tt.code)
		assert.Equal(t, tt.kind, se.Kind, "code %d", tt.code)
		assert.Equal(t, tt.code, se.StatusCode)
	}

	assert.Nil(t, ClassifyStatus(200, nil))
	assert.Nil(t, ClassifyStatus(204, nil))
}

func TestClassifyStatusTruncatesBody(t *testing.T) {
	se := ClassifyStatus(500, []byte(strings.Repeat("x", 2000)))
	require.NotNil(t, se)
	assert.Len(t, se.Body, 500)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindRateLimited, KindOf(ClassifyStatus(429, nil)))
	assert.Equal(t, ErrorKind(""), KindOf(context.Canceled))
}
