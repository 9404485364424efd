package forum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"forumbump/internal/components/chrono/chronotest"
	"forumbump/internal/components/telemetry/telemetrytest"

	"github.com/stretchr/testify/require"
)

type exchangeRecorder struct {
	exchanges []Exchange
}

func (r *exchangeRecorder) RecordResponse(ex Exchange) {
	r.exchanges = append(r.exchanges, ex)
}

func TestBackoff(t *testing.T) {
	expected := []time.Duration{4, 8, 16, 32, 64, 128, 256, 256, 256, 256}
	for i, seconds := range expected {
		require.Equal(t, seconds*time.Second, DefaultRetryPolicy.Backoff(i), "attempt %d", i)
	}
	require.Equal(t, 256*time.Second, DefaultRetryPolicy.Backoff(10000))

	uncapped := RetryPolicy{InitialWait: time.Second, Multiplier: 3}
	require.Equal(t, 9*time.Second, uncapped.Backoff(2))
}

// flakyServer responds with `status` to the first `failures` requests.
func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *int32) {
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		fmt.Fprintf(w, "ok %s", r.URL.Path)
	}))
	t.Cleanup(server.Close)
	return server, &count
}

func TestRequestRetriesTransientStatus(t *testing.T) {
	for _, status := range []int{502, 503, 504, 520, 522, 524} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			server, count := flakyServer(t, 3, status)
			sleeper := &chronotest.Sleeper{}
			recorder := &exchangeRecorder{}
			transport := newTestTransport(t, server.URL, sleeper, TransportOptions{Recorder: recorder})

			res, err := transport.Get(context.Background(), "member.php", nil)
			require.NoError(t, err)
			require.Equal(t, 200, res.StatusCode())
			require.Equal(t, "ok /member.php", res.String())

			require.Equal(t, int32(4), atomic.LoadInt32(count))
			require.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second}, sleeper.Slept())

			require.Len(t, recorder.exchanges, 4)
			require.Equal(t, status, recorder.exchanges[0].Status)
			last, ok := transport.LastExchange()
			require.True(t, ok)
			require.Equal(t, 200, last.Status)
			require.Equal(t, "ok /member.php", last.Body)
		})
	}
}

func TestRequestDoesNotRetryOtherStatuses(t *testing.T) {
	for _, status := range []int{400, 403, 404, 500} {
		server, count := flakyServer(t, 1, status)
		sleeper := &chronotest.Sleeper{}
		transport := newTestTransport(t, server.URL, sleeper, TransportOptions{})

		res, err := transport.Get(context.Background(), "member.php", nil)
		require.NoError(t, err)
		require.Equal(t, status, res.StatusCode())
		require.Equal(t, int32(1), atomic.LoadInt32(count))
		require.Empty(t, sleeper.Slept())
	}
}

func TestRequestDoesNotResubmitForms(t *testing.T) {
	server, count := flakyServer(t, 1, http.StatusBadGateway)
	sleeper := &chronotest.Sleeper{}
	transport := newTestTransport(t, server.URL, sleeper, TransportOptions{})

	res, err := transport.Post(context.Background(), "newreply.php", RequestOptions{
		Form: map[string]string{"posthash": "abc"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, res.StatusCode())
	require.Equal(t, int32(1), atomic.LoadInt32(count))
	require.Empty(t, sleeper.Slept())
}

func TestRequestRetriesNetworkErrors(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	stop := errors.New("stop")
	sleeper := &chronotest.Sleeper{
		OnSleep: func(n int, _ time.Duration) error {
			if n == 5 {
				return stop
			}
			return nil
		},
	}
	transport := newTestTransport(t, url, sleeper, TransportOptions{})

	_, err := transport.Get(context.Background(), "index.php", nil)
	require.ErrorIs(t, err, stop)
	require.Equal(t, []time.Duration{
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		64 * time.Second,
	}, sleeper.Slept())
	_, ok := transport.LastExchange()
	require.False(t, ok)
}

func TestRequestBoundedRetries(t *testing.T) {
	server, count := flakyServer(t, 100, http.StatusServiceUnavailable)
	sleeper := &chronotest.Sleeper{}
	policy := DefaultRetryPolicy
	policy.MaxAttempts = 3
	transport := newTestTransport(t, server.URL, sleeper, TransportOptions{Retry: policy})

	_, err := transport.Get(context.Background(), "index.php", nil)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, int32(3), atomic.LoadInt32(count))
	require.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, sleeper.Slept())
}

func TestRequestStopsOnCancel(t *testing.T) {
	server, count := flakyServer(t, 100, http.StatusBadGateway)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := &chronotest.Sleeper{
		OnSleep: func(n int, _ time.Duration) error {
			if n == 2 {
				cancel()
			}
			return nil
		},
	}
	transport := newTestTransport(t, server.URL, sleeper, TransportOptions{})

	_, err := transport.Get(ctx, "index.php", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, sleeper.Slept(), 2)
	require.Equal(t, int32(2), atomic.LoadInt32(count))
}

func TestRequestForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		fmt.Fprintf(w, "%s %s %s", r.Method, r.URL.Query().Get("action"), r.PostForm.Get("message"))
	}))
	defer server.Close()

	transport := newTestTransport(t, server.URL+"/", &chronotest.Sleeper{}, TransportOptions{})
	res, err := transport.Post(context.Background(), "newreply.php", RequestOptions{
		Query: map[string]string{"action": "do_newreply"},
		Form:  map[string]string{"message": "hello there"},
	})
	require.NoError(t, err)
	require.Equal(t, "POST do_newreply hello there", res.String())
}

func TestRelativePath(t *testing.T) {
	transport := newTestTransport(t, "https://ogusers.com/", &chronotest.Sleeper{}, TransportOptions{})

	table := []struct {
		ref    string
		expect string
	}{
		{ref: "https://ogusers.com/Thread-abc", expect: "Thread-abc"},
		{ref: "ogusers.com/Thread-abc", expect: "Thread-abc"},
		{ref: "www.ogusers.com/Thread-abc?page=2", expect: "Thread-abc?page=2"},
		{ref: "/Thread-abc", expect: "Thread-abc"},
		{ref: "Thread-abc", expect: "Thread-abc"},
	}
	for _, test := range table {
		require.Equal(t, test.expect, transport.relativePath(test.ref), test.ref)
	}
}

func TestNewTransportRejectsRelativeBase(t *testing.T) {
	_, err := NewTransport(TransportOptions{BaseUrl: "ogusers.com"}, &telemetrytest.Recorder{})
	require.Error(t, err)
}
