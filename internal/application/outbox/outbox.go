package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/domain/models"
)

const (
	KindAudit   = "audit"
	KindInsight = "insight"

	deadLetterCap = 100
)

var ErrStopped = errors.New("side effect queue stopped")

// Publisher - очередь побочных эффектов, которые не должны блокировать основную операцию
type Publisher interface {
	RecordAudit(record models.AuditRecord)
	NotifyInsight(kind models.InsightKind, roomCode string, data map[string]any)
}

type AuditSink interface {
	Append(ctx context.Context, record *models.AuditRecord) error
}

type InsightSink interface {
	Publish(ctx context.Context, event models.InsightEvent) error
}

type task struct {
	kind string
	desc string
	run  func(ctx context.Context) error
}

// DeadLetter - задача, отброшенная после исчерпания попыток или переполнения очереди
type DeadLetter struct {
	Kind     string    `json:"kind"`
	Desc     string    `json:"desc"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

type Options struct {
	Buffer      int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	// Timeout ограничивает одну попытку
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	return o
}

type Dispatcher struct {
	audit    AuditSink
	insights InsightSink
	opts     Options
	now      func() time.Time

	queue chan task
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	deadMu sync.Mutex
	dead   []DeadLetter
}

func NewDispatcher(audit AuditSink, insights InsightSink, opts Options) *Dispatcher {
	opts = opts.withDefaults()

	return &Dispatcher{
		audit:    audit,
		insights: insights,
		opts:     opts,
		now:      time.Now,
		queue:    make(chan task, opts.Buffer),
	}
}

// Start запускает воркеры; они работают до Stop
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop прекращает приём задач и ждёт обработки очереди, пока не истечёт ctx
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Depth() int {
	return len(d.queue)
}

func (d *Dispatcher) DeadLetters() []DeadLetter {
	d.deadMu.Lock()
	defer d.deadMu.Unlock()

	out := make([]DeadLetter, len(d.dead))
	copy(out, d.dead)
	return out
}

func (d *Dispatcher) RecordAudit(record models.AuditRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = d.now()
	}

	d.enqueue(task{
		kind: KindAudit,
		desc: record.Action + " " + record.Target,
		run: func(ctx context.Context) error {
			return d.audit.Append(ctx, &record)
		},
	})
}

func (d *Dispatcher) NotifyInsight(kind models.InsightKind, roomCode string, data map[string]any) {
	event := models.InsightEvent{
		Kind:     kind,
		RoomCode: roomCode,
		At:       d.now(),
		Data:     data,
	}

	d.enqueue(task{
		kind: KindInsight,
		desc: string(kind) + " " + roomCode,
		run: func(ctx context.Context) error {
			return d.insights.Publish(ctx, event)
		},
	})
}

// enqueue не блокирует вызывающего: при переполнении задача сразу уходит в dead-letter
func (d *Dispatcher) enqueue(t task) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.deadLetter(t, ErrStopped, 0)
		return
	}

	select {
	case d.queue <- t:
		metric.SetSideEffectQueueDepth(len(d.queue))
	default:
		d.deadLetter(t, errors.New("queue is full"), 0)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for t := range d.queue {
		metric.SetSideEffectQueueDepth(len(d.queue))
		d.process(t)
	}
}

func (d *Dispatcher) process(t task) {
	var err error

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		err = t.run(ctx)
		cancel()

		if err == nil {
			return
		}

		log.Warn().
			Err(err).
			Str(constant.EventType, t.kind).
			Int("attempt", attempt).
			Msg("side effect failed")

		if attempt < d.opts.MaxAttempts {
			time.Sleep(d.opts.Backoff * time.Duration(attempt))
		}
	}

	d.deadLetter(t, err, d.opts.MaxAttempts)
}

func (d *Dispatcher) deadLetter(t task, err error, attempts int) {
	metric.IncSideEffectDeadLetters(t.kind)

	log.Error().
		Err(err).
		Str(constant.EventType, t.kind).
		Str(constant.Reason, t.desc).
		Msg("side effect dead-lettered")

	d.deadMu.Lock()
	defer d.deadMu.Unlock()

	d.dead = append(d.dead, DeadLetter{
		Kind:     t.kind,
		Desc:     t.desc,
		Error:    err.Error(),
		Attempts: attempts,
		At:       d.now(),
	})

	if len(d.dead) > deadLetterCap {
		d.dead = d.dead[len(d.dead)-deadLetterCap:]
	}
}

type logAuditSink struct{}

// NewLogAuditSink пишет записи аудита в лог, когда Postgres не настроен
func NewLogAuditSink() AuditSink {
	return logAuditSink{}
}

func (logAuditSink) Append(_ context.Context, record *models.AuditRecord) error {
	log.Info().
		Str(constant.AdminID, record.AdminID).
		Str(constant.Action, record.Action).
		Str(constant.RoomCode, record.Target).
		Bool("success", record.Success).
		Interface("metadata", record.Metadata).
		Msg("audit")

	return nil
}
