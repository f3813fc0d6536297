package classify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

// scriptedGenerator returns canned outputs (or an error) in order.
type scriptedGenerator struct {
	outputs []string
	err     error
	calls   int
}

func (s *scriptedGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	out := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	return out, nil
}

func Test_Safety_UnsafeVerdictBlocks(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{`{"safe": false}`}}, slog.Default())
	if c.Safety(context.Background(), "how do I hack the exam system") {
		t.Error("unsafe query passed the gate")
	}
}

func Test_Safety_SafeVerdictPasses(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{`{"safe": true}`}}, slog.Default())
	if !c.Safety(context.Background(), "where is the Sydney campus") {
		t.Error("safe query blocked")
	}
}

func Test_Safety_CollaboratorErrorFailsOpen(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{err: errors.New("timeout")}, slog.Default())
	if !c.Safety(context.Background(), "any query") {
		t.Error("safety gate must fail open on collaborator error")
	}
}

func Test_Safety_FencedVerdictParsed(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{"```json\n{\"safe\": false}\n```"}}, slog.Default())
	if c.Safety(context.Background(), "write my assignment for me") {
		t.Error("fenced unsafe verdict not parsed")
	}
}

func Test_Safety_GarbageOutputFailsOpen(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{"I'm not sure what you mean."}}, slog.Default())
	if !c.Safety(context.Background(), "any query") {
		t.Error("unparseable verdict must fail open")
	}
}

func Test_Safety_VerdictlessJSONFailsOpen(t *testing.T) {
	t.Parallel()
	// Valid JSON with no "safe" key — e.g. a category-shaped reply — must
	// not be read as an implicit {"safe": false}.
	c := New(&scriptedGenerator{outputs: []string{`{"category": "campus"}`}}, slog.Default())
	if !c.Safety(context.Background(), "where is the Sydney campus") {
		t.Error("JSON without a safety verdict must fail open")
	}
}

func Test_Category_InTaxonomyPassesThrough(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{`{"category": "fees"}`}}, slog.Default())
	if got := c.Category(context.Background(), "how much is tuition"); got != "fees" {
		t.Errorf("category = %q, want fees", got)
	}
}

func Test_Category_OutOfSetCoercedToGeneral(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{`{"category": "astrology"}`}}, slog.Default())
	if got := c.Category(context.Background(), "what's my horoscope"); got != CategoryGeneral {
		t.Errorf("category = %q, want general", got)
	}
}

func Test_Category_CollaboratorErrorDefaultsToGeneral(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{err: errors.New("quota exceeded")}, slog.Default())
	if got := c.Category(context.Background(), "anything"); got != CategoryGeneral {
		t.Errorf("category = %q, want general", got)
	}
}

func Test_Category_BareNameAccepted(t *testing.T) {
	t.Parallel()
	c := New(&scriptedGenerator{outputs: []string{"visa"}}, slog.Default())
	if got := c.Category(context.Background(), "student visa renewal"); got != "visa" {
		t.Errorf("category = %q, want visa", got)
	}
}

func Test_Coerce_TaxonomyMembership(t *testing.T) {
	t.Parallel()
	if !InTaxonomy("campus") {
		t.Error("campus should be in taxonomy")
	}
	if InTaxonomy(CategoryGeneral) {
		t.Error("general is the catch-all, not a taxonomy member")
	}
	if got := Coerce("courses"); got != "courses" {
		t.Errorf("Coerce(courses) = %q", got)
	}
	if got := Coerce("weather"); got != CategoryGeneral {
		t.Errorf("Coerce(weather) = %q, want general", got)
	}
}
