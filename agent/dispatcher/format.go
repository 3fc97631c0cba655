package dispatcher

import (
	"fmt"
	"strings"
	"time"
)

// Currency renders a monetary value in Brazilian format: R$ 1.234,56.
func Currency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}

	whole := fmt.Sprintf("%.2f", v)
	intPart := whole[:len(whole)-3]
	decPart := whole[len(whole)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return sign + "R$ " + b.String() + "," + decPart
}

// DateBR converts an ISO YYYY-MM-DD date to DD/MM/YYYY. Anything that does not
// parse is returned unchanged.
func DateBR(iso string) string {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(iso))
	if err != nil {
		return iso
	}
	return t.Format("02/01/2006")
}
