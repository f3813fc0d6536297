// Package pipeline implements the retrieval orchestrator: the confidence-
// gated state machine that turns a student query into an answer. A query
// flows through validation, the safety gate, category classification,
// embedding, store search, and memory lookup; retrieval confidence then
// selects between answering directly and triggering the self-learning
// loop. The safety gate is the only hard stop — every other collaborator
// failure except the answer generator's degrades gracefully.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sistc/ragcore/internal/budget"
	"github.com/sistc/ragcore/internal/classify"
	"github.com/sistc/ragcore/internal/embed"
	"github.com/sistc/ragcore/internal/knowledge"
	"github.com/sistc/ragcore/internal/learn"
	"github.com/sistc/ragcore/internal/lifecycle"
	"github.com/sistc/ragcore/internal/llm"
	"github.com/sistc/ragcore/internal/memory"
)

const (
	// DefaultConfidenceThreshold gates direct answering on the best match
	// similarity.
	DefaultConfidenceThreshold = 0.70

	// DefaultMaxQueryLength caps query size before any I/O.
	DefaultMaxQueryLength = 2000

	// defaultTopK is the number of knowledge matches retrieved per query.
	defaultTopK = 5

	// defaultMinSimilarity is the retrieval score floor.
	defaultMinSimilarity = 0.10

	// defaultMemoryLimit is the number of remembered turns included.
	defaultMemoryLimit = 3

	// previousAnswerExcerpt caps how much of the prior answer is prepended
	// to the query before embedding, so follow-ups like "and in summer?"
	// land near the right records.
	previousAnswerExcerpt = 200
)

// refusalText is the fixed response for queries the safety gate blocks.
const refusalText = "I can't help with that. I'm here for questions about " +
	"studying at SISTC — admissions, courses, fees, visas, campus life, and support services."

// answerSystem is the system prompt for grounded answer generation.
const answerSystem = `You are the SISTC student assistant. Answer the student's
question using the knowledge context and conversation memory provided. Be
concise and specific. If the context does not cover the question, say what you
know and what the student should verify with student services.`

// lowConfidenceNote is appended to the prompt when retrieval confidence is
// below the gate and learning produced nothing new.
const lowConfidenceNote = `The available context only partially covers this
question. Answer with what the context supports, state clearly what you are
unsure about, and do not present guesses as facts.`

// Result is the outcome of one query through the pipeline.
type Result struct {
	// Text is the answer (or refusal) shown to the student.
	Text string
	// Confidence is the best retrieval similarity backing the answer.
	Confidence float64
	// Category is the taxonomy bucket the query was classified into.
	Category string
	// Blocked reports that the safety gate stopped the query.
	Blocked bool
	// Learned reports that the self-learning loop stored new knowledge
	// while answering.
	Learned bool
}

// Config holds the tunables for constructing an Engine.
type Config struct {
	// ConfidenceThreshold gates direct answering (default 0.70).
	ConfidenceThreshold float64
	// MaxQueryLength caps query size in characters (default 2000).
	MaxQueryLength int
	// MaxContextChars bounds the knowledge context bundle (default 3000).
	MaxContextChars int
	// TopK is the number of matches retrieved (default 5).
	TopK int
	// MinSimilarity is the retrieval score floor (default 0.10).
	MinSimilarity float64
	// MemoryLimit is the number of remembered turns included (default 3).
	MemoryLimit int
}

// Engine is the retrieval orchestrator. Construct with New; safe for
// concurrent use.
type Engine struct {
	// embedder vectorizes queries.
	embedder embed.Embedder
	// store is the knowledge store searched for grounding.
	store *knowledge.Store
	// classifier runs the safety and category gates.
	classifier *classify.Classifier
	// mem is the per-user conversational memory; may be nil.
	mem *memory.Log
	// gen produces the final answer.
	gen llm.Generator
	// learner runs the self-learning loop on low confidence; may be nil.
	learner *learn.Learner
	// lc schedules verification of learned records; may be nil.
	lc *lifecycle.Manager

	// cfg holds the resolved tunables.
	cfg Config
	// log records state transitions and degradations.
	log *slog.Logger
	// now is injectable for temporal-context tests.
	now func() time.Time
}

// Deps bundles the collaborators an Engine is built from. Embedder, Store,
// Classifier, and Generator are required; Memory, Learner, and Lifecycle
// are optional features that are skipped when nil.
type Deps struct {
	Embedder   embed.Embedder
	Store      *knowledge.Store
	Classifier *classify.Classifier
	Memory     *memory.Log
	Generator  llm.Generator
	Learner    *learn.Learner
	Lifecycle  *lifecycle.Manager
	Log        *slog.Logger
}

// New constructs an Engine, validating the wiring. An embedder whose
// dimensionality disagrees with the store is rejected here rather than at
// first query time.
func New(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.Embedder == nil:
		return nil, &ConfigError{Reason: "embedder is required"}
	case deps.Store == nil:
		return nil, &ConfigError{Reason: "knowledge store is required"}
	case deps.Classifier == nil:
		return nil, &ConfigError{Reason: "classifier is required"}
	case deps.Generator == nil:
		return nil, &ConfigError{Reason: "answer generator is required"}
	}
	if err := embed.ValidateDimensions(deps.Embedder, deps.Store.Dimensions()); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultMaxQueryLength
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = budget.DefaultMaxContextChars
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = defaultMinSimilarity
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = defaultMemoryLimit
	}

	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		embedder:   deps.Embedder,
		store:      deps.Store,
		classifier: deps.Classifier,
		mem:        deps.Memory,
		gen:        deps.Generator,
		learner:    deps.Learner,
		lc:         deps.Lifecycle,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}, nil
}

// Answer runs one query through the pipeline. previousAnswer, when
// non-empty, is the assistant's prior answer to this user and is used for
// coreference in follow-up queries. userID may be empty, which disables
// memory for the turn.
func (e *Engine) Answer(ctx context.Context, query, userID, previousAnswer string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyInput
	}
	if utf8.RuneCountInString(query) > e.cfg.MaxQueryLength {
		return Result{}, ErrQueryTooLong
	}

	if !e.classifier.Safety(ctx, query) {
		e.log.Info("pipeline: query blocked by safety gate")
		return Result{Text: refusalText, Blocked: true}, nil
	}

	category := e.classifier.Category(ctx, query)

	matches, confidence := e.retrieve(ctx, query, previousAnswer, category)
	memories := e.relevantMemory(userID, query)

	res := Result{Confidence: confidence, Category: category}
	var answer string
	var err error

	if confidence >= e.cfg.ConfidenceThreshold && len(matches) > 0 {
		answer, err = e.generate(ctx, query, matches, memories, false)
	} else {
		learned := e.tryLearn(ctx, query)
		if learned {
			// Re-retrieve so the answer is grounded on the new records.
			matches, confidence = e.retrieve(ctx, query, previousAnswer, category)
			res.Confidence = confidence
			res.Learned = true
		}
		answer, err = e.generate(ctx, query, matches, memories, !learned)
	}
	if err != nil {
		return Result{}, err
	}
	res.Text = answer

	e.remember(ctx, userID, query, answer, category)
	return res, nil
}

// retrieve embeds the query and searches the store. Embedding failure is
// recovered by searching vectorless, which degrades to keyword scoring.
func (e *Engine) retrieve(ctx context.Context, query, previousAnswer, category string) ([]knowledge.Match, float64) {
	embedText := query
	if previousAnswer != "" {
		// Rune-aware cap so a multibyte answer is never split mid-character.
		excerpt := previousAnswer
		if runes := []rune(excerpt); len(runes) > previousAnswerExcerpt {
			excerpt = string(runes[:previousAnswerExcerpt])
		}
		embedText = excerpt + "\n" + query
	}

	vec, err := e.embedder.Embed(ctx, embedText)
	if err != nil {
		e.log.Warn("pipeline: query embedding failed, searching by keywords only",
			slog.String("error", err.Error()),
		)
		vec = nil
	}

	filter := category
	if !classify.InTaxonomy(filter) {
		filter = ""
	}
	matches, err := e.store.Search(ctx, knowledge.Query{
		Text:          query,
		Vector:        vec,
		TopK:          e.cfg.TopK,
		MinSimilarity: e.cfg.MinSimilarity,
		Category:      filter,
	})
	if err != nil {
		e.log.Warn("pipeline: knowledge search failed",
			slog.String("error", err.Error()),
		)
		return nil, 0
	}
	if len(matches) == 0 {
		return nil, 0
	}
	return matches, matches[0].Score
}

// relevantMemory fetches remembered turns for the user, if memory is wired.
func (e *Engine) relevantMemory(userID, query string) []memory.Entry {
	if e.mem == nil || userID == "" {
		return nil
	}
	return e.mem.Relevant(userID, query, e.cfg.MemoryLimit)
}

// tryLearn runs one self-learning cycle. Learner failures never fail the
// query; they only mean the answer stays low-confidence.
func (e *Engine) tryLearn(ctx context.Context, query string) bool {
	if e.learner == nil {
		return false
	}
	recs, err := e.learner.LearnFromExternal(ctx, query)
	if err != nil {
		e.log.Warn("pipeline: learning cycle failed, answering from existing context",
			slog.String("error", err.Error()),
		)
		return false
	}
	if len(recs) == 0 {
		return false
	}
	if e.lc != nil {
		for _, rec := range recs {
			e.lc.ScheduleVerification(rec)
		}
	}
	return true
}

// generate builds the grounded prompt and calls the answer model. This is
// the one collaborator whose failure surfaces to the caller.
func (e *Engine) generate(ctx context.Context, query string, matches []knowledge.Match, memories []memory.Entry, lowConfidence bool) (string, error) {
	prompt := e.buildPrompt(query, matches, memories, lowConfidence)
	out, err := e.gen.Generate(ctx, prompt, answerSystem)
	if err != nil {
		return "", &CollaboratorError{Collaborator: "generator", Err: err}
	}
	return out, nil
}

// buildPrompt assembles the knowledge context (budget-trimmed), memory,
// temporal context, and query into one prompt.
func (e *Engine) buildPrompt(query string, matches []knowledge.Match, memories []memory.Entry, lowConfidence bool) string {
	var b strings.Builder

	trimmed := budget.Trim(matches, e.cfg.MaxContextChars)
	if len(trimmed) > 0 {
		b.WriteString("Knowledge context:\n")
		for _, m := range trimmed {
			fmt.Fprintf(&b, "- %s\n", m.Record.Text)
		}
		b.WriteString("\n")
	}

	if len(memories) > 0 {
		b.WriteString("Earlier conversation:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- Student: %s\n  Assistant: %s\n", m.Message, m.Response)
		}
		b.WriteString("\n")
	}

	b.WriteString(e.temporalContext())
	b.WriteString("\n\n")

	if lowConfidence {
		b.WriteString(lowConfidenceNote)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// temporalContext describes the current moment so "today", "this week",
// and "are you open" style queries resolve correctly.
func (e *Engine) temporalContext() string {
	now := e.now()
	open := "outside business hours"
	if isBusinessHours(now) {
		open = "during business hours"
	}
	return fmt.Sprintf("Current time: %s (%s), %s.",
		now.Format("Monday, 2 January 2006 15:04"), now.Format("MST"), open)
}

// isBusinessHours reports whether t falls on a weekday between 09:00 and
// 17:00 local time.
func isBusinessHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= 9 && t.Hour() < 17
}

// remember appends the completed turn to the user's memory. Persistence
// failure is logged, never surfaced — the answer already exists.
func (e *Engine) remember(ctx context.Context, userID, query, answer, category string) {
	if e.mem == nil || userID == "" {
		return
	}
	err := e.mem.Append(ctx, memory.Entry{
		UserID:   userID,
		Message:  query,
		Response: answer,
		Context:  category,
	})
	if err != nil {
		e.log.Warn("pipeline: memory append failed",
			slog.String("error", err.Error()),
		)
	}
}
