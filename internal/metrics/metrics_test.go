package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.Photo(OutcomeTagged)
	r.Photo(OutcomeTagged)
	r.Photo(OutcomeOutOfTolerance)
	r.Trackpoints(120)
	r.MatchDistance(90 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.photos.WithLabelValues(OutcomeTagged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.photos.WithLabelValues(OutcomeOutOfTolerance)))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.trackpoints))
	assert.Equal(t, 1, testutil.CollectAndCount(r.matchDistance))
}

func TestRecorder_Push(t *testing.T) {
	var body string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.Photo(OutcomePlanned)
	require.NoError(t, r.Push(context.Background(), srv.URL, "gpx2img"))

	assert.True(t, strings.HasPrefix(path, "/metrics/job/gpx2img"), path)
	assert.NotEmpty(t, body)
}

func TestRecorder_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, New().Push(context.Background(), srv.URL, "gpx2img"))
}
