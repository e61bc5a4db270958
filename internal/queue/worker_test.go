package queue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/config"
	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/sources/twitch"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

type memExporter struct {
	mu   sync.Mutex
	runs []string
}

func (m *memExporter) Name() string { return "mem" }

func (m *memExporter) Export(_ context.Context, run pipeline.RunInfo, _ pipeline.ItemResult, _ []types.CommentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run.ID)
	return nil
}

func prepare(t *testing.T, exp pipeline.Exporter) *app.Job {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"data":{"video":{"comments":{"edges":[
			{"cursor":"c1","node":{"contentOffsetSeconds":1,"commenter":{"displayName":"alice"},"message":{"fragments":[{"text":"hi"}]}}}
		],"pageInfo":{"hasNextPage":false}}}}}]`)
	}))
	t.Cleanup(srv.Close)

	gql := twitch.NewGQL(sources.NewHTTPClient(0, time.Second), "", twitch.WithEndpoint(srv.URL))
	a := app.New(config.Default(), nil, app.WithTwitch(gql, nil), app.WithExporters(exp))
	job, err := a.Prepare(context.Background(), app.Target{Platform: "twitch", Kind: "vod", Value: "7"}, "")
	require.NoError(t, err)
	return job
}

func TestWorkerPoolCompletesJob(t *testing.T) {
	exp := &memExporter{}
	wp := NewWorkerPool(2, nil)
	wp.Start()
	defer wp.Stop()

	job := NewJob("job-1", prepare(t, exp))
	assert.Equal(t, types.StatusQueued, job.Status)
	assert.Equal(t, 1, job.Items)
	require.NoError(t, wp.EnqueueJob(job))

	assert.Eventually(t, func() bool {
		j, ok := wp.Get("job-1")
		return ok && j.Status == types.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	j, _ := wp.Get("job-1")
	assert.NotEmpty(t, j.RunID)
	assert.Zero(t, j.Failed)

	exp.mu.Lock()
	defer exp.mu.Unlock()
	assert.Equal(t, []string{j.RunID}, exp.runs)
}

func TestGetUnknownJob(t *testing.T) {
	_, ok := NewWorkerPool(1, nil).Get("missing")
	assert.False(t, ok)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	wp := NewWorkerPool(1, nil)
	prepared := prepare(t, &memExporter{})

	for i := 0; i < queueSize; i++ {
		require.NoError(t, wp.EnqueueJob(NewJob(fmt.Sprint(i), prepared)))
	}
	err := wp.EnqueueJob(NewJob("overflow", prepared))
	assert.ErrorIs(t, err, ErrQueueFull)

	j, ok := wp.Get("overflow")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, j.Status)
}

func TestStopSettlesQueuedJobs(t *testing.T) {
	wp := NewWorkerPool(1, nil)
	require.NoError(t, wp.EnqueueJob(NewJob("queued", prepare(t, &memExporter{}))))

	wp.Start()
	wp.Stop()

	j, ok := wp.Get("queued")
	require.True(t, ok)
	assert.Contains(t, []string{types.StatusFailed, types.StatusCompleted}, j.Status)
}
