package capability

import (
	"context"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2025, 7, 20, 10, 0, 0, 0, time.UTC)
}

func resolveDate(t *testing.T, input string) string {
	t.Helper()
	resolver := NewDateResolver(fixedNow)
	out, err := resolver.Invoke(context.Background(), ToolResolveRelativeDate, map[string]any{"input": input})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	got, ok := out.Result.(string)
	if !ok {
		t.Fatalf("unexpected result type %T", out.Result)
	}
	return got
}

func TestDateResolverRelativeTokens(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"hoje":      "2025-07-20",
		"ontem":     "2025-07-19",
		"Anteontem": "2025-07-18",
		" ONTEM ":   "2025-07-19",
	}
	for input, want := range cases {
		if got := resolveDate(t, input); got != want {
			t.Errorf("resolve(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDateResolverNumericPatterns(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"15/07/2025": "2025-07-15",
		"15/07":      "2025-07-15",
		"1/8":        "2025-08-01",
		"01/08/2024": "2024-08-01",
	}
	for input, want := range cases {
		if got := resolveDate(t, input); got != want {
			t.Errorf("resolve(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestDateResolverInvalidCalendarDay(t *testing.T) {
	t.Parallel()

	if got := resolveDate(t, "31/2"); got != SentinelInvalidDate {
		t.Fatalf("resolve(31/2) = %q, want invalid-date sentinel", got)
	}
}

func TestDateResolverUnrecognized(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"semana passada", "2025-07-15", "15-07-2025", ""} {
		if got := resolveDate(t, input); got != SentinelUnrecognizedForm {
			t.Errorf("resolve(%q) = %q, want unrecognized sentinel", input, got)
		}
	}
}

func TestDateResolverUnknownTool(t *testing.T) {
	t.Parallel()

	resolver := NewDateResolver(fixedNow)
	out, err := resolver.Invoke(context.Background(), "get_quote", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected tool-level error for unsupported tool")
	}
}
