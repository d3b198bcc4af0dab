package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
)

func newClient() *httpclient.Client {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return httpclient.NewClient(httpclient.DefaultConfig("test"), logger)
}

func TestPostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "fern-linker", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "JR 7", r.PostForm.Get("query"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer server.Close()

	resp, err := newClient().PostForm(context.Background(), server.URL, url.Values{"query": {"JR 7"}}, "application/json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode, "statuses are returned, not turned into errors")
	assert.Equal(t, `{"results":[]}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestDo_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := newClient().PostForm(context.Background(), endpoint, url.Values{}, "")
	require.Error(t, err)

	var transportErr *httpclient.TransportError
	assert.True(t, errors.As(err, &transportErr))
}
