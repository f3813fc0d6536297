package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sistc/ragcore/internal/classify"
	"github.com/sistc/ragcore/internal/knowledge"
	"github.com/sistc/ragcore/internal/learn"
	"github.com/sistc/ragcore/internal/llm"
	"github.com/sistc/ragcore/internal/memory"
	"github.com/sistc/ragcore/internal/websearch"
)

// scriptedGen returns canned outputs in order, then repeats the last one.
type scriptedGen struct {
	outputs []string
	err     error
	calls   int
}

func (s *scriptedGen) Generate(context.Context, string, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	i := s.calls
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	s.calls++
	return s.outputs[i], nil
}

// recordingGen captures prompts and returns a fixed reply.
type recordingGen struct {
	reply   string
	err     error
	prompts []string
}

func (r *recordingGen) Generate(_ context.Context, prompt, _ string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

// mapEmbedder returns a mapped vector per exact input text, or a default.
type mapEmbedder struct {
	dims   int
	vecs   map[string][]float32
	def    []float32
	inputs []string
}

func (m *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.inputs = append(m.inputs, text)
	if v, ok := m.vecs[text]; ok {
		return v, nil
	}
	return m.def, nil
}

func (m *mapEmbedder) Dimensions() int { return m.dims }

// fakeSearcher counts invocations and returns canned web results.
type fakeSearcher struct {
	results []websearch.Result
	calls   int
}

func (f *fakeSearcher) Search(context.Context, string, int) ([]websearch.Result, error) {
	f.calls++
	return f.results, nil
}

const campusFact = "SISTC has campuses in Sydney, Parramatta, and Melbourne."

// safeThenCampus scripts the classifier for one pass-through query.
func safeThenCampus() *scriptedGen {
	return &scriptedGen{outputs: []string{`{"safe": true}`, `{"category": "campus"}`}}
}

// testDeps bundles what newTestEngine builds so tests can inspect fakes.
type testDeps struct {
	engine   *Engine
	store    *knowledge.Store
	embedder *mapEmbedder
	answer   *recordingGen
	mem      *memory.Log
}

// newTestEngine wires an Engine over fakes. classifierGen drives the
// safety and category gates; learner may be nil.
func newTestEngine(t *testing.T, classifierGen llm.Generator, learner *learn.Learner, store *knowledge.Store, cfg Config) *testDeps {
	t.Helper()
	embedder := &mapEmbedder{dims: 2, def: []float32{1, 0}}
	answer := &recordingGen{reply: campusFact}
	mem, err := memory.NewLog(context.Background(), &memory.Config{})
	if err != nil {
		t.Fatalf("new memory log: %v", err)
	}
	e, err := New(Deps{
		Embedder:   embedder,
		Store:      store,
		Classifier: classify.New(classifierGen, nil),
		Memory:     mem,
		Generator:  answer,
		Learner:    learner,
	}, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &testDeps{engine: e, store: store, embedder: embedder, answer: answer, mem: mem}
}

// newTestStore builds a memory-only 2-dimensional store.
func newTestStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.NewStore(context.Background(), &knowledge.Config{Dimensions: 2})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func Test_Engine_ConfidentPathAnswersFromKnowledge(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	rec := knowledge.Record{ID: "k1", Text: campusFact, Vector: []float32{1, 0}, Meta: knowledge.Meta{Category: "campus"}}
	if err := store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d := newTestEngine(t, safeThenCampus(), nil, store, Config{})

	res, err := d.engine.Answer(context.Background(), "What are SISTC's campus locations?", "u1", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Blocked || res.Learned {
		t.Errorf("unexpected flags: %+v", res)
	}
	if res.Confidence < DefaultConfidenceThreshold {
		t.Errorf("confidence = %v, want >= %v", res.Confidence, DefaultConfidenceThreshold)
	}
	if !strings.Contains(res.Text, "Sydney") {
		t.Errorf("answer %q does not mention Sydney", res.Text)
	}
	if res.Category != "campus" {
		t.Errorf("category = %q, want campus", res.Category)
	}
	if len(d.answer.prompts) != 1 || !strings.Contains(d.answer.prompts[0], campusFact) {
		t.Errorf("prompt not grounded on the stored record: %v", d.answer.prompts)
	}
	if strings.Contains(d.answer.prompts[0], "unsure") {
		t.Error("confident path must not carry the low-confidence instruction")
	}
}

func Test_Engine_UnsafeQueryBlockedWithoutRetrieval(t *testing.T) {
	t.Parallel()
	d := newTestEngine(t, &scriptedGen{outputs: []string{`{"safe": false}`}}, nil, newTestStore(t), Config{})

	res, err := d.engine.Answer(context.Background(), "How do I hack the exam system?", "u1", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !res.Blocked {
		t.Error("want Blocked")
	}
	if res.Text == "" {
		t.Error("refusal text missing")
	}
	if len(d.embedder.inputs) != 0 {
		t.Errorf("retrieval ran for a blocked query: embedded %v", d.embedder.inputs)
	}
	if len(d.answer.prompts) != 0 {
		t.Error("answer generator called for a blocked query")
	}
}

func Test_Engine_LowConfidenceTriggersLearningOnce(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	searcher := &fakeSearcher{results: []websearch.Result{{Title: "SISTC", Snippet: "campus info"}}}
	distiller := &scriptedGen{outputs: []string{campusFact + " Each campus offers the full program."}}
	learner, err := learn.New(searcher, distiller, &mapEmbedder{dims: 2, def: []float32{1, 0}}, store, nil, learn.Config{}, nil)
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	d := newTestEngine(t, safeThenCampus(), learner, store, Config{})

	res, err := d.engine.Answer(context.Background(), "What are SISTC's campus locations?", "u1", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("learning loop invoked %d times, want exactly 1", searcher.calls)
	}
	if !res.Learned {
		t.Error("want Learned after successful write-back")
	}
	if res.Confidence < DefaultConfidenceThreshold {
		t.Errorf("re-retrieval should ground on the learned record, confidence = %v", res.Confidence)
	}
	if store.Len() == 0 {
		t.Error("learned record not stored")
	}
}

func Test_Engine_EmptyWebResultsStillAnswers(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	learner, err := learn.New(&fakeSearcher{}, &scriptedGen{outputs: []string{""}}, &mapEmbedder{dims: 2, def: []float32{1, 0}}, store, nil, learn.Config{}, nil)
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	d := newTestEngine(t, safeThenCampus(), learner, store, Config{})

	res, err := d.engine.Answer(context.Background(), "When does semester two start?", "u1", "")
	if err != nil {
		t.Fatalf("answer must not fail when the web finds nothing: %v", err)
	}
	if res.Learned {
		t.Error("Learned must stay false when nothing was stored")
	}
	if res.Text == "" {
		t.Error("want a text response")
	}
	if len(d.answer.prompts) != 1 || !strings.Contains(d.answer.prompts[0], "unsure") {
		t.Error("low-confidence instruction missing from prompt")
	}
}

func Test_Engine_ValidationRejectsBeforeIO(t *testing.T) {
	t.Parallel()
	d := newTestEngine(t, safeThenCampus(), nil, newTestStore(t), Config{})

	if _, err := d.engine.Answer(context.Background(), "   ", "u1", ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("blank query: got %v, want ErrEmptyInput", err)
	}
	long := strings.Repeat("q", DefaultMaxQueryLength+1)
	if _, err := d.engine.Answer(context.Background(), long, "u1", ""); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("oversized query: got %v, want ErrQueryTooLong", err)
	}
	if len(d.embedder.inputs) != 0 {
		t.Error("validation failures must reject before any collaborator call")
	}
}

func Test_Engine_SafetyGateFailsOpen(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if err := store.Upsert(context.Background(), knowledge.Record{ID: "k1", Text: campusFact, Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d := newTestEngine(t, &scriptedGen{err: errors.New("classifier down")}, nil, store, Config{})

	res, err := d.engine.Answer(context.Background(), "campus locations", "u1", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Blocked {
		t.Error("classifier outage must not block the query")
	}
	if res.Category != classify.CategoryGeneral {
		t.Errorf("category = %q, want general fallback", res.Category)
	}
}

func Test_Engine_GeneratorFailureSurfaced(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if err := store.Upsert(context.Background(), knowledge.Record{ID: "k1", Text: campusFact, Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d := newTestEngine(t, safeThenCampus(), nil, store, Config{})
	d.answer.err = errors.New("model overloaded")

	_, err := d.engine.Answer(context.Background(), "campus locations", "u1", "")
	var ce *CollaboratorError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want CollaboratorError", err)
	}
	if ce.Collaborator != "generator" {
		t.Errorf("collaborator = %q, want generator", ce.Collaborator)
	}
}

func Test_Engine_ThresholdGateMonotone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	query := "campus locations"

	// The query embeds to a vector at cosine 0.8 from the stored record.
	run := func(threshold float64) *recordingGen {
		store := newTestStore(t)
		if err := store.Upsert(ctx, knowledge.Record{ID: "k1", Text: campusFact, Vector: []float32{1, 0}}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		d := newTestEngine(t, safeThenCampus(), nil, store, Config{ConfidenceThreshold: threshold})
		d.embedder.vecs = map[string][]float32{query: {0.8, 0.6}}
		if _, err := d.engine.Answer(ctx, query, "u1", ""); err != nil {
			t.Fatalf("answer at threshold %v: %v", threshold, err)
		}
		return d.answer
	}

	if gen := run(0.5); strings.Contains(gen.prompts[0], "unsure") {
		t.Error("score 0.8 at threshold 0.5 should take the confident path")
	}
	if gen := run(0.9); !strings.Contains(gen.prompts[0], "unsure") {
		t.Error("score 0.8 at threshold 0.9 should take the low-confidence path")
	}
}

func Test_Engine_PreviousAnswerPrependedForEmbedding(t *testing.T) {
	t.Parallel()
	d := newTestEngine(t, safeThenCampus(), nil, newTestStore(t), Config{})

	prev := strings.Repeat("p", 300)
	if _, err := d.engine.Answer(context.Background(), "and in summer?", "u1", prev); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(d.embedder.inputs) != 1 {
		t.Fatalf("embedded %d texts, want 1", len(d.embedder.inputs))
	}
	got := d.embedder.inputs[0]
	if !strings.HasPrefix(got, strings.Repeat("p", 200)+"\n") {
		t.Error("previous-answer excerpt missing from embedded text")
	}
	if strings.Contains(got, strings.Repeat("p", 201)) {
		t.Error("previous-answer excerpt not capped at 200 chars")
	}
	if !strings.HasSuffix(got, "and in summer?") {
		t.Errorf("query missing from embedded text: %q", got)
	}
}

func Test_Engine_QueryLengthCountsRunes(t *testing.T) {
	t.Parallel()
	d := newTestEngine(t, safeThenCampus(), nil, newTestStore(t), Config{})

	// 2000 characters but 6000 bytes — byte counting would reject this.
	ok := strings.Repeat("学", DefaultMaxQueryLength)
	if _, err := d.engine.Answer(context.Background(), ok, "u1", ""); err != nil {
		t.Fatalf("query of exactly %d runes rejected: %v", DefaultMaxQueryLength, err)
	}
	over := strings.Repeat("学", DefaultMaxQueryLength+1)
	if _, err := d.engine.Answer(context.Background(), over, "u1", ""); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("oversized multibyte query: got %v, want ErrQueryTooLong", err)
	}
}

func Test_Engine_MultibytePreviousAnswerExcerptKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	d := newTestEngine(t, safeThenCampus(), nil, newTestStore(t), Config{})

	prev := strings.Repeat("é", 300)
	if _, err := d.engine.Answer(context.Background(), "and in summer?", "u1", prev); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(d.embedder.inputs) != 1 {
		t.Fatalf("embedded %d texts, want 1", len(d.embedder.inputs))
	}
	got := d.embedder.inputs[0]
	if !strings.HasPrefix(got, strings.Repeat("é", 200)+"\n") {
		t.Error("excerpt should keep the first 200 characters intact")
	}
	if strings.Contains(got, strings.Repeat("é", 201)) {
		t.Error("excerpt not capped at 200 characters")
	}
	if !utf8.ValidString(got) {
		t.Error("excerpt split a multibyte character")
	}
}

func Test_Engine_TurnRecordedInMemory(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if err := store.Upsert(context.Background(), knowledge.Record{ID: "k1", Text: campusFact, Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Both turns need their own safety and category verdicts.
	cls := &scriptedGen{outputs: []string{
		`{"safe": true}`, `{"category": "campus"}`,
		`{"safe": true}`, `{"category": "campus"}`,
	}}
	d := newTestEngine(t, cls, nil, store, Config{})

	if _, err := d.engine.Answer(context.Background(), "campus locations", "u1", ""); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if got := d.mem.Len("u1"); got != 1 {
		t.Fatalf("memory holds %d entries, want 1", got)
	}

	// A follow-up with overlapping terms pulls the prior turn into the prompt.
	if _, err := d.engine.Answer(context.Background(), "which campus locations again?", "u1", ""); err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if len(d.answer.prompts) != 2 {
		t.Fatalf("answer generator ran %d times, want 2", len(d.answer.prompts))
	}
	if !strings.Contains(d.answer.prompts[1], "Earlier conversation:") {
		t.Error("remembered turn missing from follow-up prompt")
	}
}

func Test_Engine_TemporalContextInPrompt(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if err := store.Upsert(context.Background(), knowledge.Record{ID: "k1", Text: campusFact, Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d := newTestEngine(t, safeThenCampus(), nil, store, Config{})
	// Tuesday 10:30 local time.
	d.engine.now = func() time.Time { return time.Date(2026, 3, 3, 10, 30, 0, 0, time.Local) }

	if _, err := d.engine.Answer(context.Background(), "campus locations", "u1", ""); err != nil {
		t.Fatalf("answer: %v", err)
	}
	prompt := d.answer.prompts[0]
	if !strings.Contains(prompt, "Tuesday") {
		t.Error("weekday missing from temporal context")
	}
	if !strings.Contains(prompt, "during business hours") {
		t.Error("business-hours flag missing from temporal context")
	}
}

func Test_Engine_ConfigErrors(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	cls := classify.New(&scriptedGen{outputs: []string{""}}, nil)

	var ce *ConfigError
	if _, err := New(Deps{Store: store, Classifier: cls, Generator: &recordingGen{}}, Config{}); !errors.As(err, &ce) {
		t.Errorf("missing embedder: got %v, want ConfigError", err)
	}
	wrongDims := &mapEmbedder{dims: 7, def: []float32{1}}
	if _, err := New(Deps{Embedder: wrongDims, Store: store, Classifier: cls, Generator: &recordingGen{}}, Config{}); !errors.As(err, &ce) {
		t.Errorf("dimension mismatch: got %v, want ConfigError", err)
	}
}

func Test_IsBusinessHours(t *testing.T) {
	t.Parallel()
	cases := []struct {
		t    time.Time
		want bool
	}{
		{time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), true},  // Tuesday morning
		{time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC), false}, // Tuesday 5pm
		{time.Date(2026, 3, 3, 8, 59, 0, 0, time.UTC), false}, // Tuesday early
		{time.Date(2026, 3, 7, 11, 0, 0, 0, time.UTC), false}, // Saturday
	}
	for _, tc := range cases {
		if got := isBusinessHours(tc.t); got != tc.want {
			t.Errorf("isBusinessHours(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}
