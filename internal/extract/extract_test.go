package extract

import "testing"

func Test_Extract_PlainJSON(t *testing.T) {
	t.Parallel()
	var v struct {
		Safe bool `json:"safe"`
	}
	if err := JSON(`{"safe": true}`, &v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !v.Safe {
		t.Error("safe = false, want true")
	}
}

func Test_Extract_FencedJSON(t *testing.T) {
	t.Parallel()
	input := "```json\n{\"category\": \"campus\"}\n```"
	var v struct {
		Category string `json:"category"`
	}
	if err := JSON(input, &v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if v.Category != "campus" {
		t.Errorf("category = %q, want campus", v.Category)
	}
}

func Test_Extract_JSONEmbeddedInProse(t *testing.T) {
	t.Parallel()
	input := `Sure! Here is the classification you asked for: {"category": "fees", "confidence": 0.9} — let me know if you need anything else.`
	var v struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := JSON(input, &v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if v.Category != "fees" || v.Confidence != 0.9 {
		t.Errorf("got %+v, want fees/0.9", v)
	}
}

func Test_Extract_NestedBracesBalanced(t *testing.T) {
	t.Parallel()
	input := `{"outer": {"inner": "a } in a string"}}`
	var v map[string]any
	if err := JSON(input, &v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if _, ok := v["outer"]; !ok {
		t.Error("outer key missing")
	}
}

func Test_Extract_NoJSONReturnsError(t *testing.T) {
	t.Parallel()
	var v map[string]any
	if err := JSON("the campus is in Sydney", &v); err == nil {
		t.Error("want error for prose with no JSON payload")
	}
}

func Test_StripFences_NoFencePassthrough(t *testing.T) {
	t.Parallel()
	if got := StripFences("  plain text  "); got != "plain text" {
		t.Errorf("got %q, want %q", got, "plain text")
	}
}

func Test_StripFences_LanguageTagRemoved(t *testing.T) {
	t.Parallel()
	if got := StripFences("```text\nhello\n```"); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func Test_Answer_QuotesAndFencesRemoved(t *testing.T) {
	t.Parallel()
	if got := Answer("```\n\"Sydney\"\n```"); got != "Sydney" {
		t.Errorf("got %q, want %q", got, "Sydney")
	}
}
