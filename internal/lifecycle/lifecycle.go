// Package lifecycle implements knowledge hygiene for the retrieval core:
// category assignment for incoming records, delayed fact-checking of
// web-learned knowledge, and age-based eviction of records that never
// passed verification.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sistc/ragcore/internal/classify"
	"github.com/sistc/ragcore/internal/extract"
	"github.com/sistc/ragcore/internal/knowledge"
	"github.com/sistc/ragcore/internal/llm"
)

const (
	// defaultVerifyDelay is how long a learned record sits in the store
	// before its delayed fact-check runs.
	defaultVerifyDelay = time.Hour

	// defaultMaxAge is the eviction horizon for records that never passed
	// verification.
	defaultMaxAge = 90 * 24 * time.Hour

	// defaultQueueSize bounds the pending verification queue.
	defaultQueueSize = 256
)

// categorizeSystem asks the model to pick one taxonomy bucket.
const categorizeSystem = `You label knowledge snippets for a university
student assistant. Reply with exactly one category name from the provided
list and nothing else.`

// verifySystem asks the model to fact-check a stored snippet.
const verifySystem = `You fact-check knowledge snippets stored by a
university student assistant. Judge whether the snippet is plausible,
internally consistent, and still likely current. Reply with JSON:
{"status": "ACCURATE" | "NEEDS_UPDATE" | "INCORRECT", "note": "one sentence"}`

// Config holds the settings for constructing a Manager.
type Config struct {
	// VerifyDelay is the wait before a scheduled fact-check runs (default 1h).
	VerifyDelay time.Duration
	// MaxAge is the eviction horizon for unverified records (default 90 days).
	MaxAge time.Duration
	// QueueSize bounds the pending verification queue (default 256).
	QueueSize int
}

// verifyTask is one pending delayed fact-check.
type verifyTask struct {
	recordID string
	due      time.Time
}

// Manager runs the knowledge lifecycle: categorization, delayed
// verification, and stale-record eviction. Start the background
// verification worker with Start and stop it with Close.
type Manager struct {
	// store is the knowledge store the manager maintains.
	store *knowledge.Store
	// gen performs categorization and fact-check calls.
	gen llm.Generator
	// cfg holds the resolved settings.
	cfg Config
	// log records verdicts and degradations.
	log *slog.Logger

	// tasks carries pending verification work to the background worker.
	tasks chan verifyTask
	// stop signals the worker to drain and exit.
	stop chan struct{}
	// wg waits for the worker on Close.
	wg sync.WaitGroup
	// startOnce guards against double worker start.
	startOnce sync.Once
	// stopOnce guards against double close of stop.
	stopOnce sync.Once
}

// NewManager constructs a lifecycle Manager. The worker is not started
// until Start is called.
func NewManager(store *knowledge.Store, gen llm.Generator, cfg Config, log *slog.Logger) (*Manager, error) {
	if store == nil || gen == nil {
		return nil, fmt.Errorf("lifecycle: store and generator are required")
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = defaultVerifyDelay
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store: store,
		gen:   gen,
		cfg:   cfg,
		log:   log,
		tasks: make(chan verifyTask, cfg.QueueSize),
		stop:  make(chan struct{}),
	}, nil
}

// Categorize assigns a taxonomy bucket to text. Classification failure
// falls back to the first taxonomy category rather than erroring: a
// mislabeled record is still retrievable through the unfiltered retry,
// an error here would block storing it at all.
func (m *Manager) Categorize(ctx context.Context, text string) string {
	fallback := classify.Taxonomy[0]

	prompt := fmt.Sprintf("Categories: %s\n\nSnippet:\n%s", strings.Join(classify.Taxonomy, ", "), text)
	out, err := m.gen.Generate(ctx, prompt, categorizeSystem)
	if err != nil {
		m.log.Warn("lifecycle: categorization failed, using fallback category",
			slog.String("fallback", fallback),
			slog.String("error", err.Error()),
		)
		return fallback
	}

	category := strings.ToLower(strings.TrimSpace(extract.StripFences(out)))
	if classify.InTaxonomy(category) {
		return category
	}
	m.log.Debug("lifecycle: categorization returned out-of-set label, using fallback",
		slog.String("label", category),
		slog.String("fallback", fallback),
	)
	return fallback
}

// Start launches the background verification worker. Safe to call once;
// subsequent calls are no-ops.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
}

// ScheduleVerification queues a delayed fact-check for the record. The
// check runs VerifyDelay after the call. A full queue drops the task with
// a warning — verification is best-effort hygiene, never a blocker.
func (m *Manager) ScheduleVerification(rec knowledge.Record) {
	task := verifyTask{recordID: rec.ID, due: time.Now().Add(m.cfg.VerifyDelay)}
	select {
	case m.tasks <- task:
	default:
		m.log.Warn("lifecycle: verification queue full, dropping task",
			slog.String("id", rec.ID),
		)
	}
}

// run is the worker loop. Tasks all carry the same delay, so FIFO channel
// order is also due order.
func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case task := <-m.tasks:
			if wait := time.Until(task.due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-m.stop:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			m.verify(task.recordID)
		}
	}
}

// verdict is the JSON shape the fact-check call returns.
type verdict struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// verify runs one fact-check and records the outcome. A record deleted
// between scheduling and execution is a silent no-op.
func (m *Manager) verify(recordID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rec, ok := m.store.Get(recordID)
	if !ok {
		m.log.Debug("lifecycle: record gone before verification", slog.String("id", recordID))
		return
	}

	prompt := fmt.Sprintf("Snippet to fact-check:\n%s", rec.Text)
	out, err := m.gen.Generate(ctx, prompt, verifySystem)
	if err != nil {
		m.log.Warn("lifecycle: fact-check call failed, record stays unverified",
			slog.String("id", recordID),
			slog.String("error", err.Error()),
		)
		return
	}

	var v verdict
	if err := extract.JSON(out, &v); err != nil {
		v = verdictFromText(out)
	}
	status := knowledge.VerificationStatus(strings.ToUpper(strings.TrimSpace(v.Status)))
	switch status {
	case knowledge.StatusAccurate, knowledge.StatusNeedsUpdate, knowledge.StatusIncorrect:
	default:
		m.log.Warn("lifecycle: unparseable fact-check verdict, record stays unverified",
			slog.String("id", recordID),
		)
		return
	}

	found, err := m.store.SetVerification(ctx, recordID, status, v.Note)
	if err != nil {
		m.log.Error("lifecycle: record verdict persistence failed",
			slog.String("id", recordID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !found {
		m.log.Debug("lifecycle: record evicted before verdict landed", slog.String("id", recordID))
		return
	}
	m.log.Info("lifecycle: record verified",
		slog.String("id", recordID),
		slog.String("status", string(status)),
	)
}

// verdictFromText salvages a verdict from non-JSON model output.
func verdictFromText(out string) verdict {
	upper := strings.ToUpper(out)
	switch {
	case strings.Contains(upper, string(knowledge.StatusNeedsUpdate)):
		return verdict{Status: string(knowledge.StatusNeedsUpdate)}
	case strings.Contains(upper, string(knowledge.StatusIncorrect)):
		return verdict{Status: string(knowledge.StatusIncorrect)}
	case strings.Contains(upper, string(knowledge.StatusAccurate)):
		return verdict{Status: string(knowledge.StatusAccurate)}
	}
	return verdict{}
}

// EvictStale deletes records older than MaxAge that never earned an
// ACCURATE verdict. Verified-accurate records are kept regardless of age.
// Returns the number of records removed.
func (m *Manager) EvictStale(ctx context.Context) (int, error) {
	evicted := 0
	for _, rec := range m.store.ListOlderThan(m.cfg.MaxAge) {
		if rec.Meta.Verified && rec.Meta.VerificationStatus == knowledge.StatusAccurate {
			continue
		}
		if err := m.store.Delete(ctx, rec.ID); err != nil {
			return evicted, fmt.Errorf("lifecycle: evict record %s: %w", rec.ID, err)
		}
		m.log.Info("lifecycle: evicted stale record",
			slog.String("id", rec.ID),
			slog.String("status", string(rec.Meta.VerificationStatus)),
		)
		evicted++
	}
	return evicted, nil
}

// Close stops the background worker and waits for it to exit.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}
