package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

// Sentinels returned by the date normalizer for unusable input. These are part
// of the tool's wire contract, not user-facing prose.
const (
	SentinelInvalidDate      = "Data inválida"
	SentinelUnrecognizedForm = "Formato não reconhecido"
)

var numericDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(/(\d{4}))?$`)

// DateResolver normalizes relative date expressions ("hoje", "ontem",
// "anteontem") and D/M or D/M/YYYY numeric patterns to ISO YYYY-MM-DD. It is
// the only component allowed to compute dates; the classifier delegates here.
type DateResolver struct {
	now func() time.Time
}

func NewDateResolver(now func() time.Time) *DateResolver {
	if now == nil {
		now = time.Now
	}
	return &DateResolver{now: now}
}

func (r *DateResolver) Invoke(_ context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
	if tool != ToolResolveRelativeDate {
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s is not provided by the date resolver", tool),
		}, nil
	}

	raw, _ := args["input"].(string)
	return contractx.ToolResult{
		Tool:   tool,
		Result: r.resolve(raw),
	}, nil
}

func (r *DateResolver) resolve(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	today := r.now()

	switch input {
	case "hoje":
		return today.Format("2006-01-02")
	case "ontem":
		return today.AddDate(0, 0, -1).Format("2006-01-02")
	case "anteontem":
		return today.AddDate(0, 0, -2).Format("2006-01-02")
	}

	match := numericDatePattern.FindStringSubmatch(input)
	if match == nil {
		return SentinelUnrecognizedForm
	}

	day := atoi(match[1])
	month := atoi(match[2])
	year := today.Year()
	if match[4] != "" {
		year = atoi(match[4])
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (31/2 becomes March); reject anything that
	// did not land on the requested calendar day.
	if date.Year() != year || date.Month() != time.Month(month) || date.Day() != day {
		return SentinelInvalidDate
	}
	return date.Format("2006-01-02")
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
