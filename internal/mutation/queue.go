package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/rickgao/realtime-sync/internal/event"
	"github.com/rickgao/realtime-sync/internal/netstatus"
	"github.com/rickgao/realtime-sync/internal/store"
)

var tracer = otel.Tracer("mutation-queue")

// Config holds Mutation Queue configuration.
type Config struct {
	StorageKey     string        // Store key holding the JSON array of operations
	MaxRetries     int           // Failed passes before an operation is abandoned
	ReplayInterval time.Duration // Periodic replay while online
	WriteTimeout   time.Duration // Per-operation remote write timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StorageKey:     "mutation_queue",
		MaxRetries:     3,
		ReplayInterval: 30 * time.Second,
		WriteTimeout:   30 * time.Second,
	}
}

// Abandoned is emitted once when an operation reaches the retry ceiling.
type Abandoned struct {
	Operation Operation
	Err       error // Last write error
}

// ReplayResult summarizes one replay pass.
type ReplayResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Abandoned int
	Remaining int
	Stopped   bool // Pass ended early because the network went offline
}

// Stats is a snapshot of the queue.
type Stats struct {
	Pending      int
	Enqueued     int64
	Replayed     int64
	Failures     int64
	Abandoned    int64
	Passes       int64
	LastReplayAt time.Time
}

// Queue is the Mutation Queue.
type Queue struct {
	cfg     Config
	store   store.Store
	writer  Writer
	network netstatus.Monitor
	loop    *event.Loop
	logger  *slog.Logger

	abandonedFeed *event.Feed[Abandoned]
	replays       singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()

	mu         sync.Mutex
	ops        []Operation
	loaded     bool
	generation uint64 // Bumped by ClearAll
	dirty      bool   // Set by Enqueue; a running pass takes another snapshot

	// Stats
	enqueued   int64
	replayed   int64
	failures   int64
	abandoned  int64
	passes     int64
	lastReplay time.Time
}

// NewQueue creates a queue. Events are posted to loop; a nil loop emits
// them on the calling goroutine.
func NewQueue(cfg Config, st store.Store, writer Writer, network netstatus.Monitor, loop *event.Loop, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.StorageKey == "" {
		cfg.StorageKey = def.StorageKey
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.ReplayInterval <= 0 {
		cfg.ReplayInterval = def.ReplayInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	logger = logger.With("component", "mutation")

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		cfg:           cfg,
		store:         st,
		writer:        writer,
		network:       network,
		loop:          loop,
		logger:        logger,
		abandonedFeed: event.NewFeed[Abandoned]("mutation_abandoned", logger),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Load reads persisted operations. It runs once; later calls are no-ops.
func (q *Queue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loaded {
		return nil
	}

	data, err := q.store.Get(ctx, q.cfg.StorageKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		q.ops = nil
	case err != nil:
		return fmt.Errorf("load mutation queue: %w", err)
	default:
		var ops []Operation
		if err := json.Unmarshal(data, &ops); err != nil {
			return fmt.Errorf("decode mutation queue: %w", err)
		}
		q.ops = ops
	}

	q.loaded = true
	q.logger.Info("mutation queue loaded", "pending", len(q.ops))
	return nil
}

// Start loads persisted state, then begins periodic replay and listens for
// network transitions. A replay runs right away if operations are pending.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.Load(ctx); err != nil {
		return err
	}

	if q.network != nil {
		q.unsub = q.network.Subscribe(func(online bool) {
			if online {
				q.trigger("network_online")
			}
		})
	}

	q.wg.Add(1)
	go q.run()

	q.logger.Info("mutation queue started",
		"replay_interval", q.cfg.ReplayInterval,
		"max_retries", q.cfg.MaxRetries,
	)

	if q.Len() > 0 {
		q.trigger("startup")
	}
	return nil
}

// Stop halts periodic replay and waits for in-flight passes.
func (q *Queue) Stop(ctx context.Context) error {
	if q.unsub != nil {
		q.unsub()
	}

	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("mutation queue stopped", "pending", q.Len())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnAbandoned subscribes to operations dropped at the retry ceiling.
func (q *Queue) OnAbandoned(fn func(Abandoned)) func() {
	return q.abandonedFeed.Subscribe(fn)
}

// Enqueue records a write intent and returns its operation ID. The
// operation is durable when Enqueue returns. If the network is online a
// replay is started in the background.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, entityType string, data any) (string, error) {
	op, err := NewOperation(kind, entityType, data, time.Now())
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	if !q.loaded {
		q.mu.Unlock()
		return "", ErrNotLoaded
	}

	next := make([]Operation, len(q.ops), len(q.ops)+1)
	copy(next, q.ops)
	next = append(next, op)

	if err := q.persistLocked(ctx, next); err != nil {
		q.mu.Unlock()
		return "", err
	}
	q.ops = next
	q.dirty = true
	q.enqueued++
	pending := len(q.ops)
	q.mu.Unlock()

	q.logger.Debug("mutation enqueued",
		"op_id", op.ID,
		"kind", op.Kind,
		"entity_type", op.EntityType,
		"pending", pending,
	)

	if q.online() {
		q.trigger("enqueue")
	}
	return op.ID, nil
}

// Replay runs one pass over the queue and waits for it. Concurrent calls
// share one pass. The pass belongs to the queue: cancelling ctx stops the
// wait, not the pass.
func (q *Queue) Replay(ctx context.Context) (ReplayResult, error) {
	if !q.isLoaded() {
		return ReplayResult{}, ErrNotLoaded
	}

	ch := q.replays.DoChan("replay", q.runPass)
	select {
	case r := <-ch:
		if r.Err != nil {
			return ReplayResult{}, r.Err
		}
		return r.Val.(ReplayResult), nil
	case <-ctx.Done():
		return ReplayResult{}, ctx.Err()
	}
}

// ManualSync replays now. It fails with ErrOffline when the network is down.
func (q *Queue) ManualSync(ctx context.Context) (ReplayResult, error) {
	if !q.online() {
		return ReplayResult{}, ErrOffline
	}
	return q.Replay(ctx)
}

// ClearAll discards every pending operation without delivering it.
func (q *Queue) ClearAll(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Delete(ctx, q.cfg.StorageKey); err != nil {
		return fmt.Errorf("clear mutation queue: %w", err)
	}

	dropped := len(q.ops)
	q.ops = nil
	q.loaded = true
	q.generation++

	q.logger.Info("mutation queue cleared", "dropped", dropped)
	return nil
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Snapshot returns the pending operations in enqueue order.
func (q *Queue) Snapshot() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Stats returns a snapshot of queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pending:      len(q.ops),
		Enqueued:     q.enqueued,
		Replayed:     q.replayed,
		Failures:     q.failures,
		Abandoned:    q.abandoned,
		Passes:       q.passes,
		LastReplayAt: q.lastReplay,
	}
}

// run is the periodic replay loop.
func (q *Queue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.ReplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			if q.online() && q.Len() > 0 {
				q.replayNow("timer")
			}
		}
	}
}

// trigger starts a background replay.
func (q *Queue) trigger(reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.replayNow(reason)
	}()
}

func (q *Queue) replayNow(reason string) {
	res, err := q.Replay(context.Background())
	if err != nil {
		q.logger.Warn("replay failed to start", "reason", reason, "error", err)
		return
	}
	if res.Attempted > 0 {
		q.logger.Info("replay pass complete",
			"reason", reason,
			"succeeded", res.Succeeded,
			"failed", res.Failed,
			"abandoned", res.Abandoned,
			"remaining", res.Remaining,
		)
	}
}

// runPass runs replayPass on the queue's context, tracked by Stop.
func (q *Queue) runPass() (any, error) {
	q.mu.Lock()
	if q.ctx.Err() != nil {
		res := ReplayResult{Stopped: true, Remaining: len(q.ops)}
		q.mu.Unlock()
		return res, nil
	}
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	return q.replayPass(q.ctx), nil
}

// replayPass walks the queue in order. Operations enqueued during the pass
// are picked up by another snapshot before it returns; each operation is
// attempted at most once per pass.
func (q *Queue) replayPass(ctx context.Context) ReplayResult {
	ctx, span := tracer.Start(ctx, "MutationQueue.Replay")
	defer span.End()

	var res ReplayResult
	attempted := make(map[string]struct{})

	for batch, gen := q.nextBatch(); len(batch) > 0; batch, gen = q.nextBatch() {
		for _, op := range batch {
			if _, seen := attempted[op.ID]; seen {
				continue
			}
			if ctx.Err() != nil {
				res.Stopped = true
				break
			}
			if !q.online() {
				q.logger.Info("network offline, stopping replay pass", "remaining", q.Len())
				res.Stopped = true
				break
			}
			live, cleared := q.queued(gen, op.ID)
			if cleared {
				q.logger.Debug("queue cleared, abandoning snapshot")
				break
			}
			if !live {
				continue
			}

			attempted[op.ID] = struct{}{}
			res.Attempted++
			err := q.apply(ctx, op)
			if err == nil {
				res.Succeeded++
				q.complete(ctx, op)
				continue
			}

			res.Failed++
			if ev, dropped := q.fail(ctx, op, err); dropped {
				res.Abandoned++
				q.emit(func() { q.abandonedFeed.Emit(ev) })
			}
		}
		if res.Stopped || !q.hasArrivals() {
			break
		}
	}
	span.SetAttributes(attribute.Int("mutation.attempted", res.Attempted))

	q.mu.Lock()
	q.passes++
	q.lastReplay = time.Now()
	res.Remaining = len(q.ops)
	q.mu.Unlock()

	span.SetAttributes(
		attribute.Int("mutation.succeeded", res.Succeeded),
		attribute.Int("mutation.failed", res.Failed),
		attribute.Int("mutation.abandoned", res.Abandoned),
	)
	if res.Failed > 0 {
		span.SetStatus(codes.Error, "some operations failed")
	} else {
		span.SetStatus(codes.Ok, "replayed")
	}
	return res
}

// nextBatch snapshots the pending operations and clears the dirty flag.
func (q *Queue) nextBatch() ([]Operation, uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dirty = false
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out, q.generation
}

// hasArrivals reports whether operations were enqueued since the last snapshot.
func (q *Queue) hasArrivals() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dirty
}

// queued reports whether op is still pending, and whether the queue was
// cleared since gen.
func (q *Queue) queued(gen uint64, id string) (live, cleared bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.generation != gen {
		return false, true
	}
	return q.indexLocked(id) >= 0, false
}

// apply performs the remote write for one operation.
func (q *Queue) apply(ctx context.Context, op Operation) error {
	ctx, span := tracer.Start(ctx, "MutationQueue.Write", trace.WithAttributes(
		attribute.String("mutation.id", op.ID),
		attribute.String("mutation.kind", string(op.Kind)),
		attribute.String("mutation.entity_type", op.EntityType),
		attribute.Int("mutation.retry_count", op.RetryCount),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, q.cfg.WriteTimeout)
	defer cancel()

	if err := q.writer.Write(ctx, op); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return err
	}
	return nil
}

// complete removes a delivered operation.
func (q *Queue) complete(ctx context.Context, op Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(op.ID)
	if idx < 0 {
		return
	}
	q.removeLocked(ctx, idx)
	q.replayed++

	q.logger.Debug("mutation replayed", "op_id", op.ID, "entity_type", op.EntityType)
}

// fail records a failed attempt and reports whether the operation was abandoned.
func (q *Queue) fail(ctx context.Context, op Operation, writeErr error) (Abandoned, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failures++

	idx := q.indexLocked(op.ID)
	if idx < 0 {
		return Abandoned{}, false
	}

	q.ops[idx].RetryCount++
	retries := q.ops[idx].RetryCount

	if retries < q.cfg.MaxRetries {
		q.logger.Warn("mutation replay failed",
			"op_id", op.ID,
			"entity_type", op.EntityType,
			"retry_count", retries,
			"error", writeErr,
		)
		if err := q.persistLocked(ctx, q.ops); err != nil {
			q.logger.Error("failed to persist retry count", "op_id", op.ID, "error", err)
		}
		return Abandoned{}, false
	}

	dropped := q.ops[idx]
	q.removeLocked(ctx, idx)
	q.abandoned++

	q.logger.Error("mutation abandoned",
		"op_id", op.ID,
		"kind", op.Kind,
		"entity_type", op.EntityType,
		"retry_count", retries,
		"error", writeErr,
	)

	return Abandoned{Operation: dropped, Err: writeErr}, true
}

func (q *Queue) removeLocked(ctx context.Context, idx int) {
	next := make([]Operation, 0, len(q.ops)-1)
	next = append(next, q.ops[:idx]...)
	next = append(next, q.ops[idx+1:]...)
	q.ops = next

	if err := q.persistLocked(ctx, q.ops); err != nil {
		q.logger.Error("failed to persist mutation queue", "error", err)
	}
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.ops {
		if q.ops[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) persistLocked(ctx context.Context, ops []Operation) error {
	if ops == nil {
		ops = []Operation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode mutation queue: %w", err)
	}
	// The in-memory state has already changed, so write even after cancellation.
	if err := q.store.Set(context.WithoutCancel(ctx), q.cfg.StorageKey, data); err != nil {
		return fmt.Errorf("persist mutation queue: %w", err)
	}
	return nil
}

func (q *Queue) isLoaded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loaded
}

func (q *Queue) online() bool {
	return q.network == nil || q.network.Online()
}

func (q *Queue) emit(fn func()) {
	if q.loop == nil {
		fn()
		return
	}
	if !q.loop.Post(fn) {
		fn()
	}
}
