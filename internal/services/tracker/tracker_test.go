package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubmit_BackendOnly(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/api/v1/txn/track/swap", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	tr, err := New(Config{APIBase: backend.URL, ChainUID: "plume"}, nil)
	require.NoError(t, err)

	ok := tr.Submit(context.Background(), "0xabc", "0x1111")
	require.True(t, ok)
	require.Equal(t, int32(1), hits.Load())

	stats := tr.Stats()
	require.Equal(t, 1, stats.SuccessfulSubmissions)
	require.Equal(t, pointsPerSwap, stats.TotalPoints)
}

func TestSubmit_FrontendCarriesCookies(t *testing.T) {
	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("__Secure-next-auth.session-token")
		require.NoError(t, err)
		require.Equal(t, "sess", cookie.Value)
		w.WriteHeader(http.StatusOK)
	}))
	defer frontend.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	tr, err := New(Config{
		FrontendBase: frontend.URL,
		APIBase:      backend.URL,
		Cookies:      map[string]string{"__Secure-next-auth.session-token": "sess"},
	}, nil)
	require.NoError(t, err)

	// frontend success is enough even when the backend endpoint fails
	ok := tr.Submit(context.Background(), "0xabc", "0x1111")
	require.True(t, ok)
}

func TestSubmit_AllEndpointsFail(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	tr, err := New(Config{APIBase: backend.URL}, nil)
	require.NoError(t, err)

	ok := tr.Submit(context.Background(), "0xabc", "0x1111")
	require.False(t, ok)

	stats := tr.Stats()
	require.Equal(t, 1, stats.FailedSubmissions)
	require.Equal(t, 0, stats.TotalPoints)
}

func TestNew_RequiresAPIBase(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
