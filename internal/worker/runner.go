package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/followup-engine/internal/pkg/distlock"
	"github.com/ignite/followup-engine/internal/service/followup"
)

const (
	// DefaultPollInterval is how often the continuous scheduling pass runs.
	DefaultPollInterval = 15 * time.Minute

	// DefaultSendInterval is how often due attempts are delivered.
	DefaultSendInterval = 1 * time.Minute

	// DefaultSendBatch caps one delivery sweep.
	DefaultSendBatch = 50

	lockTTL = 10 * time.Minute
)

// Engine abstracts the followup scheduler for the runner, so tests can
// drive the loops without a database.
type Engine interface {
	RunScheduling(ctx context.Context) (followup.BatchSummary, error)
	RunSlot(ctx context.Context, slot string) (followup.BatchSummary, error)
	DeliverDue(ctx context.Context, limit int) (int, error)
}

// Runner drives the scheduler on a clock: a continuous scheduling pass on a
// poll interval, a delivery sweep for due attempts, and optional fixed-slot
// passes at configured wall-clock times. Each pass runs under a distributed
// lock so only one replica works at a time.
type Runner struct {
	engine       Engine
	redisClient  *redis.Client // optional; nil falls back to PG advisory locks
	db           *sql.DB
	workerID     string
	pollInterval time.Duration
	sendInterval time.Duration
	sendBatch    int

	// SlotTimes maps slot name to "HH:MM" in the given location. Empty
	// means the runner operates in continuous mode only.
	slotTimes map[string]string
	slotLoc   *time.Location

	// Stats
	passesRun      int64
	slotPassesRun  int64
	attemptsSent   int64
	errors         int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a runner over the given engine. db is used for advisory
// locks when no Redis client is set.
func NewRunner(engine Engine, db *sql.DB) *Runner {
	hostname, _ := os.Hostname()
	return &Runner{
		engine:       engine,
		db:           db,
		workerID:     fmt.Sprintf("runner-%s-%d", hostname, time.Now().UnixNano()%10000),
		pollInterval: DefaultPollInterval,
		sendInterval: DefaultSendInterval,
		sendBatch:    DefaultSendBatch,
		slotLoc:      time.UTC,
	}
}

// SetRedisClient switches pass locking to Redis.
func (r *Runner) SetRedisClient(client *redis.Client) { r.redisClient = client }

// SetPollInterval overrides the continuous pass interval.
func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// SetSendInterval overrides the delivery sweep interval.
func (r *Runner) SetSendInterval(d time.Duration) {
	if d > 0 {
		r.sendInterval = d
	}
}

// SetSendBatch overrides how many due attempts one delivery sweep takes.
func (r *Runner) SetSendBatch(n int) {
	if n > 0 {
		r.sendBatch = n
	}
}

// SetSlotTimes enables fixed-slot passes. Keys must be valid slot names,
// values "HH:MM" wall-clock times in loc.
func (r *Runner) SetSlotTimes(times map[string]string, loc *time.Location) error {
	for slot := range times {
		if !followup.ValidSlot(slot) {
			return fmt.Errorf("unknown slot %q", slot)
		}
	}
	r.slotTimes = times
	if loc != nil {
		r.slotLoc = loc
	}
	return nil
}

// Start launches the runner loops.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	log.Printf("[Runner] Starting: poll=%v send=%v slots=%d", r.pollInterval, r.sendInterval, len(r.slotTimes))

	r.wg.Add(1)
	go r.scheduleLoop()

	r.wg.Add(1)
	go r.deliverLoop()

	if len(r.slotTimes) > 0 {
		r.wg.Add(1)
		go r.slotLoop()
	}
	return nil
}

// Stop gracefully stops the runner.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	log.Printf("[Runner] Stopping...")
	r.cancel()
	r.wg.Wait()
	log.Printf("[Runner] Stopped. Passes: %d, Slot passes: %d, Sent: %d, Errors: %d",
		atomic.LoadInt64(&r.passesRun), atomic.LoadInt64(&r.slotPassesRun),
		atomic.LoadInt64(&r.attemptsSent), atomic.LoadInt64(&r.errors))
}

// Stats returns the runner's counters.
func (r *Runner) Stats() (passes, slotPasses, sent, errs int64) {
	return atomic.LoadInt64(&r.passesRun), atomic.LoadInt64(&r.slotPassesRun),
		atomic.LoadInt64(&r.attemptsSent), atomic.LoadInt64(&r.errors)
}

func (r *Runner) scheduleLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runSchedulingPass()
		}
	}
}

func (r *Runner) deliverLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.sendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runDeliverySweep()
		}
	}
}

// slotLoop wakes once a minute and fires a slot pass when the wall clock in
// the slot timezone matches a configured time. The lock keys off the slot
// and the date so concurrent replicas contend per slot firing, and the
// idempotence guard in the scheduler absorbs any repeat within the minute.
func (r *Runner) slotLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			clock := now.In(r.slotLoc).Format("15:04")
			for slot, at := range r.slotTimes {
				if clock == at {
					r.runSlotPass(slot, now.In(r.slotLoc).Format("2006-01-02"))
				}
			}
		}
	}
}

func (r *Runner) withLock(name string, fn func(ctx context.Context)) {
	lock := distlock.New(r.redisClient, r.db, name, lockTTL)

	acquired, err := lock.TryAcquire(r.ctx)
	if err != nil {
		atomic.AddInt64(&r.errors, 1)
		log.Printf("[Runner] Lock %s: %v", name, err)
		return
	}
	if !acquired {
		return
	}
	defer lock.Release(r.ctx)

	fn(r.ctx)
}

func (r *Runner) runSchedulingPass() {
	r.withLock("scheduling-pass", func(ctx context.Context) {
		sum, err := r.engine.RunScheduling(ctx)
		if err != nil {
			atomic.AddInt64(&r.errors, 1)
			log.Printf("[Runner] Scheduling pass failed: %v", err)
			return
		}
		atomic.AddInt64(&r.passesRun, 1)
		log.Printf("[Runner] Scheduling pass: analyzed=%d eligible=%d scheduled=%d",
			sum.EmailsAnalyzed, sum.EmailsEligible, sum.FollowupsScheduled)
	})
}

func (r *Runner) runDeliverySweep() {
	r.withLock("delivery-sweep", func(ctx context.Context) {
		n, err := r.engine.DeliverDue(ctx, r.sendBatch)
		if err != nil {
			atomic.AddInt64(&r.errors, 1)
			log.Printf("[Runner] Delivery sweep failed: %v", err)
			return
		}
		if n > 0 {
			atomic.AddInt64(&r.attemptsSent, int64(n))
			log.Printf("[Runner] Delivered %d due followups", n)
		}
	})
}

func (r *Runner) runSlotPass(slot, day string) {
	r.withLock("slot-"+slot+"-"+day, func(ctx context.Context) {
		sum, err := r.engine.RunSlot(ctx, slot)
		if err != nil {
			atomic.AddInt64(&r.errors, 1)
			log.Printf("[Runner] Slot pass %s failed: %v", slot, err)
			return
		}
		atomic.AddInt64(&r.slotPassesRun, 1)
		log.Printf("[Runner] Slot pass %s: analyzed=%d sent=%d failed=%d",
			slot, sum.EmailsAnalyzed, sum.FollowupsSent, sum.FollowupsFailed)
	})
}
