package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/models"
)

func job(id string, priority int, created time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		Kind:      models.JobKindScrape,
		WebsiteID: "site-1",
		Priority:  priority,
		CreatedAt: created,
	}
}

func TestAddAndGetOrdering(t *testing.T) {
	q := New("scraping", 10)
	base := time.Now()

	// Same priority orders by creation time, then id.
	require.True(t, q.Add(job("c", 2, base.Add(time.Second))))
	require.True(t, q.Add(job("b", 2, base)))
	require.True(t, q.Add(job("a", 2, base)))
	require.True(t, q.Add(job("urgent", 1, base.Add(time.Minute))))

	var got []string
	for i := 0; i < 4; i++ {
		j := q.Get(context.Background(), time.Second)
		require.NotNil(t, j)
		got = append(got, j.ID)
	}
	assert.Equal(t, []string{"urgent", "a", "b", "c"}, got)
}

func TestRejectsWhenFull(t *testing.T) {
	q := New("scraping", 500)
	created := time.Now()

	for i := 0; i < 500; i++ {
		require.True(t, q.Add(job(fmt.Sprintf("job-%03d", i), 3, created)))
	}
	assert.False(t, q.Add(job("job-501", 1, created)), "501st job must be rejected")
	assert.True(t, q.IsFull())
	assert.Equal(t, 500, q.Len())
}

func TestGetTimesOutOnEmptyQueue(t *testing.T) {
	q := New("scraping", 10)

	start := time.Now()
	j := q.Get(context.Background(), 30*time.Millisecond)
	assert.Nil(t, j)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGetUnblocksOnClose(t *testing.T) {
	q := New("scraping", 10)

	done := make(chan *models.Job, 1)
	go func() { done <- q.Get(context.Background(), time.Minute) }()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case j := <-done:
		assert.Nil(t, j)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock on close")
	}

	// Closed queues reject new jobs.
	assert.False(t, q.Add(job("late", 1, time.Now())))
}

func TestGetHonorsContextCancel(t *testing.T) {
	q := New("scraping", 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *models.Job, 1)
	go func() { done <- q.Get(ctx, time.Minute) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case j := <-done:
		assert.Nil(t, j)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock on cancel")
	}
}

func TestRemovePendingJob(t *testing.T) {
	q := New("scraping", 10)
	created := time.Now()

	require.True(t, q.Add(job("keep", 2, created)))
	require.True(t, q.Add(job("drop", 1, created)))

	assert.True(t, q.Remove("drop"))
	assert.False(t, q.Remove("drop"))
	assert.Equal(t, 1, q.Len())

	j := q.Get(context.Background(), time.Second)
	require.NotNil(t, j)
	assert.Equal(t, "keep", j.ID)
}

func TestStatsSnapshot(t *testing.T) {
	q := New("scraping", 2)
	created := time.Now()

	assert.Equal(t, Stats{PendingJobs: 0, MaxSize: 2, IsFull: false}, q.Stats())

	require.True(t, q.Add(job("a", 1, created)))
	require.True(t, q.Add(job("b", 1, created)))
	assert.Equal(t, Stats{PendingJobs: 2, MaxSize: 2, IsFull: true}, q.Stats())
}
