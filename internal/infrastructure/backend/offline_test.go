package backend

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/offline"
)

type switchConnectivity struct {
	online atomic.Bool
}

func (s *switchConnectivity) Online() bool {
	return s.online.Load()
}

func waitForQueue(t *testing.T, queue *offline.Queue, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for queue.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("queue never reached %d entries", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOfflineRequestsReplayInOrder(t *testing.T) {
	connectivity := &switchConnectivity{}
	queue := offline.NewQueue(offline.QueueConfig{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"ok","tasks":[]}`))
	}), Options{Connectivity: connectivity, Queue: queue})

	var mu sync.Mutex
	var sent []string
	client.Interceptors().Add(Interceptor{Request: func(_ context.Context, cfg RequestConfig) (RequestConfig, error) {
		mu.Lock()
		sent = append(sent, cfg.Path)
		mu.Unlock()
		return cfg, nil
	}})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, id := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = client.DeleteTask(context.Background(), id)
		}(i, id)
		waitForQueue(t, queue, i+1)
	}

	if len(sent) != 0 {
		t.Fatalf("nothing may be sent while offline, got %v", sent)
	}

	connectivity.online.Store(true)
	queue.Drain(context.Background())
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("operation %d: %v", i, err)
		}
	}
	want := []string{"/api/tasks/A", "/api/tasks/B", "/api/tasks/C"}
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != len(want) {
		t.Fatalf("expected %v, got %v", want, sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, sent)
		}
	}
}

func TestOfflineStatusReadServedFromCache(t *testing.T) {
	connectivity := &switchConnectivity{}
	connectivity.online.Store(true)
	queue := offline.NewQueue(offline.QueueConfig{})
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"task_id":"t1","status":"extracting","created_at":"2024-01-01T00:00:00"}`))
	}), Options{Connectivity: connectivity, Queue: queue, StatusTTL: time.Minute})

	if _, err := client.TaskStatus(context.Background(), "t1"); err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}

	connectivity.online.Store(false)
	task, err := client.TaskStatus(context.Background(), "t1")
	if err != nil {
		t.Fatalf("offline TaskStatus() error = %v", err)
	}
	if task.Status != domain.TaskStatusExtracting {
		t.Fatalf("unexpected cached status %s", task.Status)
	}
	if hits.Load() != 1 || queue.Len() != 0 {
		t.Fatalf("expected cached answer without network or queueing, hits=%d queued=%d", hits.Load(), queue.Len())
	}
}

func TestOfflineWaiterHonoursCancellation(t *testing.T) {
	connectivity := &switchConnectivity{}
	queue := offline.NewQueue(offline.QueueConfig{})
	var hits atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), Options{Connectivity: connectivity, Queue: queue})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.DeleteTask(ctx, "t1") }()
	waitForQueue(t, queue, 1)
	cancel()

	if failure := domain.AsFailure(<-done); failure.Code != domain.CodeCanceled {
		t.Fatalf("expected canceled failure, got %+v", failure)
	}

	connectivity.online.Store(true)
	queue.Drain(context.Background())
	if hits.Load() != 0 {
		t.Fatalf("canceled operation must not be replayed")
	}
}
