package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/core/ports"
	"github.com/kirillkom/autofund-client/internal/infrastructure/optimistic"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxFailures = 5
	defaultPollMaxDelay    = 30 * time.Second
	defaultMaxUploadMB     = 10

	preferencesKey   = "user_preferences"
	pollGiveUpReason = "Failed to poll for status updates"
)

// Metrics receives facade level events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	PollTransition(status string)
	Upload(err error)
}

type Config struct {
	PollInterval    time.Duration
	PollMaxFailures int
	PollMaxDelay    time.Duration
	// MaxUploadMB is only used to render the file-too-large message.
	MaxUploadMB int
}

type Dependencies struct {
	Backend      ports.BackendAPI
	Validator    ports.UploadValidator
	Storage      ports.ObjectStorage
	Publisher    ports.StatusPublisher
	History      ports.HistoryStore
	Connectivity ports.ConnectivityReporter
	Metrics      Metrics
}

// UploadSnapshot is the lifecycle of the most recent upload.
type UploadSnapshot struct {
	TaskID   string                `json:"task_id,omitempty"`
	State    domain.UploadState    `json:"state"`
	Progress domain.UploadProgress `json:"progress"`
	Error    string                `json:"error,omitempty"`
}

type trackedTask struct {
	task        domain.Task
	nif         string
	fiscalYear  string
	companyName string
}

type poller struct {
	token  uint64
	cancel context.CancelFunc
}

// TaskClient is the single entry point used by the CLI and the bridge.
// It owns the per-task status view, the pollers and the optimistic
// records; everything below it is reached through ports.
type TaskClient struct {
	backend      ports.BackendAPI
	validator    ports.UploadValidator
	storage      ports.ObjectStorage
	publisher    ports.StatusPublisher
	history      ports.HistoryStore
	connectivity ports.ConnectivityReporter
	metrics      Metrics

	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	tasks     map[string]*trackedTask
	pollers   map[string]poller
	nextToken uint64
	current   UploadSnapshot

	watchMu        sync.Mutex
	nextWatchToken uint64
	watchers       map[string]map[uint64]chan domain.Task

	uploads     *optimistic.Ledger[domain.Task]
	predictions *optimistic.Ledger[domain.Task]
	results     *optimistic.Ledger[*domain.AnalysisResult]
	prefs       *optimistic.Ledger[domain.UserPreferences]

	prefsMu        sync.Mutex
	committedPrefs domain.UserPreferences
}

func NewTaskClient(deps Dependencies, cfg Config) *TaskClient {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollMaxFailures <= 0 {
		cfg.PollMaxFailures = defaultPollMaxFailures
	}
	if cfg.PollMaxDelay <= 0 {
		cfg.PollMaxDelay = defaultPollMaxDelay
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = defaultMaxUploadMB
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TaskClient{
		backend:        deps.Backend,
		validator:      deps.Validator,
		storage:        deps.Storage,
		publisher:      deps.Publisher,
		history:        deps.History,
		connectivity:   deps.Connectivity,
		metrics:        deps.Metrics,
		cfg:            cfg,
		sleep:          resilience.Sleep,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		tasks:          make(map[string]*trackedTask),
		pollers:        make(map[string]poller),
		current:        UploadSnapshot{State: domain.UploadStateIdle},
		watchers:       make(map[string]map[uint64]chan domain.Task),
		uploads:        optimistic.NewLedger[domain.Task](),
		predictions:    optimistic.NewLedger[domain.Task](),
		results:        optimistic.NewLedger[*domain.AnalysisResult](),
		prefs:          optimistic.NewLedger[domain.UserPreferences](),
		committedPrefs: domain.DefaultPreferences(),
	}
}

// Close stops every poller and waits for them to return.
func (c *TaskClient) Close() {
	c.cancel()
	c.wg.Wait()
}

// Task returns what a caller should display for taskID: a pending
// optimistic prediction when there is one, otherwise the last accepted
// status.
func (c *TaskClient) Task(taskID string) (domain.Task, bool) {
	if predicted, ok := c.predictions.Get(taskID); ok {
		return predicted, true
	}
	if pending, ok := c.uploads.Get(taskID); ok {
		return pending, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked, ok := c.tasks[taskID]
	if !ok {
		return domain.Task{}, false
	}
	return tracked.task, true
}

func (c *TaskClient) TaskState(taskID string) domain.UploadState {
	task, ok := c.Task(taskID)
	if !ok {
		return domain.UploadStateIdle
	}
	return domain.UploadStateFor(task.Status)
}

func (c *TaskClient) State() UploadSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Reset forgets everything the client holds for taskID. With an empty id
// only the current upload snapshot returns to idle.
func (c *TaskClient) Reset(taskID string) {
	if taskID != "" {
		c.StopPolling(taskID)
		c.predictions.Rollback(taskID)
		c.uploads.Rollback(taskID)
		c.results.Rollback(resultKey(taskID))
	}

	c.mu.Lock()
	if taskID != "" {
		delete(c.tasks, taskID)
	}
	if taskID == "" || c.current.TaskID == taskID {
		c.current = UploadSnapshot{State: domain.UploadStateIdle}
	}
	c.mu.Unlock()
}

func (c *TaskClient) IsOnline() bool {
	if c.connectivity == nil {
		return true
	}
	return c.connectivity.IsOnline()
}

func (c *TaskClient) OfflineQueueLength() int {
	if c.connectivity == nil {
		return 0
	}
	return c.connectivity.OfflineQueueLength()
}

func (c *TaskClient) HealthCheck(ctx context.Context) (*domain.HealthStatus, error) {
	health, err := c.backend.Health(ctx)
	if err != nil {
		return nil, failure(err)
	}
	return health, nil
}

func (c *TaskClient) ListTasks(ctx context.Context) ([]domain.TaskSummary, error) {
	tasks, err := c.backend.ListTasks(ctx)
	if err != nil {
		return nil, failure(err)
	}
	return tasks, nil
}

// DeleteTask removes the task on the backend and drops local state once
// the backend has accepted the delete.
func (c *TaskClient) DeleteTask(ctx context.Context, taskID string) error {
	if err := c.backend.DeleteTask(ctx, taskID); err != nil {
		return failure(err)
	}
	c.Reset(taskID)
	return nil
}

func (c *TaskClient) track(task domain.Task, req *domain.UploadRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked := &trackedTask{task: task}
	if req != nil {
		tracked.nif = req.NIF
		tracked.fiscalYear = req.FiscalYear
		tracked.companyName = req.CompanyName
	}
	c.tasks[task.ID] = tracked
}

func (c *TaskClient) publish(ctx context.Context, task domain.Task) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishStatus(ctx, task); err != nil {
		slog.Warn("status_publish_failed", "task_id", task.ID, "status", task.Status, "error", err)
	}
}

// failure converts err to the client's error model without turning a nil
// error into a typed nil.
func failure(err error) error {
	if err == nil {
		return nil
	}
	return domain.AsFailure(err)
}

func resultKey(taskID string) string {
	return "result_" + taskID
}

var (
	_ ports.TaskService          = (*TaskClient)(nil)
	_ ports.ConnectivityReporter = (*TaskClient)(nil)
)
