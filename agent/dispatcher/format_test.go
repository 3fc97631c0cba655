package dispatcher

import "testing"

func TestCurrency(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{50, "R$ 50,00"},
		{32.7, "R$ 32,70"},
		{1234.56, "R$ 1.234,56"},
		{1234567.89, "R$ 1.234.567,89"},
		{-42.5, "-R$ 42,50"},
	}
	for _, tc := range cases {
		if got := Currency(tc.in); got != tc.want {
			t.Errorf("Currency(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDateBR(t *testing.T) {
	t.Parallel()

	if got := DateBR("2025-07-20"); got != "20/07/2025" {
		t.Errorf("DateBR = %q", got)
	}
	if got := DateBR("ontem"); got != "ontem" {
		t.Errorf("unparseable input must pass through, got %q", got)
	}
}
