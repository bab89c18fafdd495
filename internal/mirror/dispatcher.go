// Package mirror replicates saved chat transcripts to external document
// storage after they are committed to the database. Replication is best
// effort: failures are logged and never reach the caller that saved the chat.
package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"advisor-twin/internal/domain"
	"advisor-twin/internal/storage"
)

// Config tunes the dispatcher. Zero values get defaults.
type Config struct {
	Folder        string
	MaxConcurrent int
	QueueSize     int
	RatePerSecond float64
	JobTimeout    time.Duration
	Logger        *logrus.Logger
}

// Dispatcher runs mirror jobs on a bounded pool of goroutines.
type Dispatcher struct {
	cfg     Config
	storage storage.Service
	limiter *rate.Limiter
	now     func() time.Time

	jobs   chan domain.ChatSession
	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewDispatcher(cfg Config, store storage.Service) *Dispatcher {
	if cfg.Folder == "" {
		cfg.Folder = "Chat Transcripts"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Dispatcher{
		cfg:     cfg,
		storage: store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		now:     time.Now,
		jobs:    make(chan domain.ChatSession, cfg.QueueSize),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Start launches the dispatch loop. Jobs queued before Start wait for it.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.loop()
	d.cfg.Logger.WithField("component", "mirror").Infof("transcript mirror started, folder: %s", d.cfg.Folder)
}

// Shutdown stops accepting jobs, cancels in-flight uploads and waits for the
// workers to return. Jobs still queued are dropped with a log line.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	d.wg.Wait()
	if dropped := len(d.jobs); dropped > 0 {
		d.cfg.Logger.WithField("component", "mirror").Warnf("%d queued transcripts not mirrored", dropped)
	}
	d.cfg.Logger.WithField("component", "mirror").Info("transcript mirror stopped")
}

// Enabled reports whether the dispatcher has a storage backend.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.storage != nil
}

// Enqueue schedules a committed session for mirroring without blocking. It
// returns false when the queue is full or the dispatcher is shut down.
func (d *Dispatcher) Enqueue(session domain.ChatSession) bool {
	if !d.Enabled() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	select {
	case d.jobs <- session:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case session := <-d.jobs:
			select {
			case <-d.ctx.Done():
				return
			case d.sem <- struct{}{}:
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer func() { <-d.sem }()
				d.handle(session)
			}()
		}
	}
}

func (d *Dispatcher) handle(session domain.ChatSession) {
	logger := d.cfg.Logger.WithFields(logrus.Fields{
		"component":  "mirror",
		"session_id": session.ID,
	})

	if err := d.limiter.Wait(d.ctx); err != nil {
		logger.Warnf("mirror cancelled: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.JobTimeout)
	defer cancel()

	location, err := d.mirror(ctx, session)
	if err != nil {
		logger.WithError(err).Error("mirror transcript")
		return
	}
	logger.Infof("transcript mirrored to %s", location)
}

func (d *Dispatcher) mirror(ctx context.Context, session domain.ChatSession) (string, error) {
	folderKey, err := d.storage.EnsureFolder(ctx, d.cfg.Folder)
	if err != nil {
		return "", err
	}
	return d.storage.PutDocument(ctx, folderKey, storage.Document{
		Name:        DocumentName(session, d.now()),
		Body:        strings.NewReader(session.Transcript),
		ContentType: "text/plain; charset=utf-8",
	})
}

// DocumentName is the mirrored file name for a session:
// chat-<id>-<UTC timestamp>-<short random suffix>.txt.
func DocumentName(session domain.ChatSession, at time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("chat-%d-%s-%s.txt", session.ID, at.UTC().Format("20060102T150405Z"), suffix)
}
