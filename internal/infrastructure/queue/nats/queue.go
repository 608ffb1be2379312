package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/autofund-client/internal/core/domain"
	"github.com/kirillkom/autofund-client/internal/infrastructure/resilience"
)

const defaultSubjectPrefix = "autofund.tasks"

// StatusEvent is the message published for every accepted transition.
type StatusEvent struct {
	TaskID     string            `json:"task_id"`
	Status     domain.TaskStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	Optimistic bool              `json:"optimistic,omitempty"`
	ObservedAt time.Time         `json:"observed_at"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
	Flush() error
	Close()
}

// Publisher broadcasts task transitions so other client processes can
// follow an analysis without polling the backend themselves.
type Publisher struct {
	conn     conn
	prefix   string
	executor *resilience.Executor
	policy   resilience.Policy
	now      func() time.Time
}

type Options struct {
	SubjectPrefix      string
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	ResilienceExecutor *resilience.Executor
}

func New(url string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	nc, err := nats.Connect(
		url,
		nats.Name("autofund-client"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newPublisher(nc, options), nil
}

func newPublisher(c conn, options Options) *Publisher {
	prefix := strings.Trim(options.SubjectPrefix, ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	policy := resilience.DefaultPolicy()
	if options.ResilienceExecutor != nil {
		policy = options.ResilienceExecutor.Policy()
	}
	return &Publisher{
		conn:     c,
		prefix:   prefix,
		executor: options.ResilienceExecutor,
		policy:   policy,
		now:      time.Now,
	}
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) subject(taskID string) string {
	return p.prefix + "." + taskID
}

func (p *Publisher) PublishStatus(ctx context.Context, task domain.Task) error {
	payload, err := json.Marshal(StatusEvent{
		TaskID:     task.ID,
		Status:     task.Status,
		Error:      task.Error,
		Optimistic: task.Optimistic,
		ObservedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	subject := p.subject(task.ID)
	call := func(context.Context, int) error {
		if err := p.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, p.classify)
	} else {
		err = call(ctx, 0)
	}
	if err != nil {
		return publishFailure(err)
	}
	return nil
}

// SubscribeStatus delivers events for taskID, or for every task when
// taskID is empty, until ctx is done.
func (p *Publisher) SubscribeStatus(ctx context.Context, taskID string, handler func(context.Context, StatusEvent)) error {
	subject := p.prefix + ".>"
	if taskID != "" {
		subject = p.subject(taskID)
	}

	sub, err := p.conn.Subscribe(subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := DecodeStatusEvent(msg.Data)
		if err != nil {
			slog.Warn("nats_status_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		handler(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe: %w", err)
	}
	return nil
}

func DecodeStatusEvent(data []byte) (StatusEvent, error) {
	var event StatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return StatusEvent{}, fmt.Errorf("decode status event: %w", err)
	}
	if event.TaskID == "" {
		return StatusEvent{}, fmt.Errorf("decode status event: missing task_id")
	}
	return event, nil
}
