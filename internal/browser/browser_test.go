package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolharvest/internal/config"
)

const listingHTML = `<html><body>
<a href="/tool/alpha"><img src="https://cdn.example.com/a/1_2_3.webp"></a>
<a href="/tool/beta"><img data-src="https://cdn.example.com/b/4_5_6.png"></a>
<img src="https://cdn.example.com/placeholder.svg">
</body></html>`

func TestPoll(t *testing.T) {
	ctx := context.Background()

	calls := 0
	got, ok := Poll(ctx, 5, time.Millisecond, func(context.Context) (int, bool) {
		calls++

		return calls, calls == 3
	})

	assert.True(t, ok)
	assert.Equal(t, 3, got)
	assert.Equal(t, 3, calls)
}

func TestPoll_ExhaustsAttempts(t *testing.T) {
	calls := 0
	got, ok := Poll(context.Background(), 4, 0, func(context.Context) (string, bool) {
		calls++

		return "partial", false
	})

	assert.False(t, ok)
	assert.Equal(t, "partial", got)
	assert.Equal(t, 4, calls)
}

func TestPoll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, ok := Poll(ctx, 100, time.Hour, func(context.Context) (int, bool) {
		calls++
		cancel()

		return 0, false
	})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestStaticPage_Queries(t *testing.T) {
	ctx := context.Background()

	page, err := NewStaticPageFromHTML(listingHTML)
	require.NoError(t, err)

	var stats ImageCount
	require.NoError(t, page.Evaluate(ctx, ImageStats(`(?i)/\d+_\d+_\d+\.(?:webp|png)`), &stats))
	assert.Equal(t, ImageCount{Matching: 2, Loaded: 2}, stats)

	var height int
	require.NoError(t, page.Evaluate(ctx, ScrollHeight(), &height))
	assert.Zero(t, height)

	grew, err := page.WaitForCondition(ctx, HeightAbove(0), time.Second)
	require.NoError(t, err)
	assert.False(t, grew)

	err = page.Evaluate(ctx, Query{Name: "custom"}, nil)
	assert.True(t, errors.Is(err, ErrUnknownQuery))
}

func TestSnapshot(t *testing.T) {
	page, err := NewStaticPageFromHTML(listingHTML)
	require.NoError(t, err)

	doc, err := Snapshot(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Find("a").Length())
}

func TestSnapshot_NoDocument(t *testing.T) {
	_, err := Snapshot(context.Background(), NewStaticPage(nil))
	assert.True(t, errors.Is(err, ErrNoDocument))
}

func TestStaticPage_WaitHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStaticPage(nil).Wait(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatgpt.html"), []byte("<html><body>hi</body></html>"), 0644))

	page := NewStaticPage(DirLoader{Dir: dir})
	require.NoError(t, page.Navigate(context.Background(), "https://www.toolify.ai/tool/chatgpt", NavigateOptions{}))

	doc, err := Snapshot(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "hi", doc.Find("body").Text())

	err = page.Navigate(context.Background(), "https://www.toolify.ai/tool/missing", NavigateOptions{})
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestSnapshotName(t *testing.T) {
	tests := map[string]string{
		"https://www.toolify.ai/new":          "new.html",
		"https://www.toolify.ai/tool/chatgpt": "chatgpt.html",
		"https://www.toolify.ai/":             "index.html",
		"https://www.toolify.ai":              "index.html",
	}

	for in, want := range tests {
		assert.Equal(t, want, SnapshotName(in), in)
	}
}

func fastRetry() *config.RetryPolicy {
	return &config.RetryPolicy{
		MaxAttempts:       3,
		InitialDelayMs:    1,
		MaxDelayMs:        5,
		BackoffMultiplier: 2.0,
		TimeoutSec:        5,
	}
}

func TestHTTPLoader_RetriesRetryableStatus(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer server.Close()

	loader := NewHTTPLoader(fastRetry(), "harvest-test", 0, nil)
	loader.Client().GetClient().Transport = http.DefaultTransport

	body, err := loader.Load(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "harvest-test", body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPLoader_NoRetryOnNotFound(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	loader := NewHTTPLoader(fastRetry(), "", 0, nil)
	loader.Client().GetClient().Transport = http.DefaultTransport

	_, err := loader.Load(context.Background(), server.URL)
	assert.True(t, errors.Is(err, ErrUnexpectedStatusCode))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPLoader_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	loader := NewHTTPLoader(fastRetry(), "", 1, nil)
	loader.Client().GetClient().Transport = http.DefaultTransport

	body, err := loader.Load(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, body, 1024)
}

func TestHTTPLoader_ExhaustedRetriesAreMarked(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	loader := NewHTTPLoader(fastRetry(), "", 0, nil)
	loader.Client().GetClient().Transport = http.DefaultTransport

	_, err := loader.Load(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrUnexpectedStatusCode)
	assert.True(t, Retried(err))
	assert.Equal(t, int32(fastRetry().MaxAttempts), hits.Load())
}

func TestRetried(t *testing.T) {
	assert.False(t, Retried(ErrSnapshotNotFound))
	assert.False(t, Retried(errors.New("timeout")))
	assert.True(t, Retried(errors.Join(errors.New("wrap"), ErrUnexpectedStatusCode)))
}

func TestBoundedContext(t *testing.T) {
	t.Run("timeout ends the context", func(t *testing.T) {
		ctx, cancel := boundedContext(context.Background(), context.Background(), 20*time.Millisecond)
		defer cancel()

		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("Expected bounded context to end")
		}

		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})

	t.Run("caller cancellation propagates", func(t *testing.T) {
		caller, cancelCaller := context.WithCancel(context.Background())

		ctx, cancel := boundedContext(context.Background(), caller, 0)
		defer cancel()

		cancelCaller()

		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("Expected caller cancellation to reach the derived context")
		}
	})

	t.Run("parent stays alive", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		defer cancelParent()

		_, cancel := boundedContext(parent, context.Background(), time.Millisecond)
		cancel()

		assert.NoError(t, parent.Err())
	})
}

func TestPollCondition_BlockingEvaluationIsBounded(t *testing.T) {
	var calls atomic.Int32

	// Each evaluation hangs until its own bound fires, like a wedged tab.
	hang := func(ctx context.Context, _ *bool) error {
		calls.Add(1)

		evalCtx, cancel := boundedContext(context.Background(), ctx, 10*time.Millisecond)
		defer cancel()

		<-evalCtx.Done()

		return evalCtx.Err()
	}

	start := time.Now()

	ok, err := pollCondition(context.Background(), 50*time.Millisecond, 20*time.Millisecond, hang)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollCondition_Holds(t *testing.T) {
	var calls atomic.Int32

	ok, err := pollCondition(context.Background(), time.Second, time.Millisecond, func(_ context.Context, holds *bool) error {
		*holds = calls.Add(1) == 2

		return nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPollCondition_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := pollCondition(ctx, time.Second, time.Millisecond, func(context.Context, *bool) error { return nil })
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
