package ci

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *Config {
	cfg := DefaultConfig(baseURL, "ci-user", "ci-token")
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollMaxElapsed = 200 * time.Millisecond
	return cfg
}

func writeStatus(w http.ResponseWriter, inQueue, inProgress bool, result string) {
	json.NewEncoder(w).Encode(map[string]any{
		"inQueue": inQueue,
		"lastBuild": map[string]any{
			"inProgress": inProgress,
			"result":     result,
		},
	})
}

func TestCreateJobPollsUntilSettled(t *testing.T) {
	var statusCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "ci-user", user)
		assert.Equal(t, "ci-token", pass)

		switch r.URL.Path {
		case "/createItem":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "20240101_120000", r.URL.Query().Get("name"))
			assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusOK)
		case "/job/20240101_120000/api/json":
			// Queued for the first two polls, then settled clean.
			n := atomic.AddInt32(&statusCalls, 1)
			writeStatus(w, n <= 2, false, "SUCCESS")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.CreateJob(context.Background(), "20240101_120000")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&statusCalls), int32(3))
}

func TestCreateJobRejectedByEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.CreateJob(context.Background(), "tag")
	assert.ErrorIs(t, err, ErrRemote)
}

func TestCreateJobFailureResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/createItem" {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeStatus(w, false, false, "FAILURE")
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.CreateJob(context.Background(), "tag")
	assert.ErrorIs(t, err, ErrRemote)
}

func TestCreateJobTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/createItem" {
			w.WriteHeader(http.StatusOK)
			return
		}
		// Never settles.
		writeStatus(w, true, false, "")
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.CreateJob(context.Background(), "tag")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrRemote)
}

func TestCreateJobContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/createItem" {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeStatus(w, true, false, "")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.CreateJob(ctx, "tag")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartJobSendsParameters(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/job/tag/buildWithParameters", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"FILE_NAME":  r.PostForm.Get("FILE_NAME"),
			"PROJECT_ID": r.PostForm.Get("PROJECT_ID"),
			"USER_ID":    r.PostForm.Get("USER_ID"),
			"BUILD_ID":   r.PostForm.Get("BUILD_ID"),
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.StartJob(context.Background(), "tag", "fw.zip", "p1", "u1", "b1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"FILE_NAME":  "fw.zip",
		"PROJECT_ID": "p1",
		"USER_ID":    "u1",
		"BUILD_ID":   "b1",
	}, gotForm)
}

func TestStartJobRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.StartJob(context.Background(), "tag", "fw.zip", "p1", "u1", "b1")
	assert.ErrorIs(t, err, ErrRemote)
}

func TestDeleteJobAlreadyAbsent(t *testing.T) {
	var deletes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/job/tag/doDelete" {
			atomic.AddInt32(&deletes, 1)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.DeleteJob(context.Background(), "tag")
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&deletes))
}

func TestDeleteJobRetriesUntilGone(t *testing.T) {
	// The job keeps existing for the first two probes.
	var probes, deletes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/job/tag/api/json":
			if atomic.AddInt32(&probes, 1) <= 2 {
				writeStatus(w, false, false, "")
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case "/job/tag/doDelete":
			atomic.AddInt32(&deletes, 1)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.DeleteJob(context.Background(), "tag")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&deletes))
}

func TestDeleteJobTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The job never goes away.
		if r.URL.Path == "/job/tag/api/json" {
			writeStatus(w, false, false, "")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	err := c.DeleteJob(context.Background(), "tag")
	assert.ErrorIs(t, err, ErrTimeout)
}
