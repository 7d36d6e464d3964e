package extractor

import (
	"strings"
	"testing"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

func TestCalculateMetricsCountsLinesAndComments(t *testing.T) {
	src := strings.Join([]string{
		"// a comment",
		"",
		"func f() {",
		"    return",
		"}",
	}, "\n")

	m := CalculateMetrics([]byte(src), nil)
	if m.CommentLOC != 1 {
		t.Fatalf("expected 1 comment line, got %d", m.CommentLOC)
	}
	if m.BlankLOC != 1 {
		t.Fatalf("expected 1 blank line, got %d", m.BlankLOC)
	}
	if m.LOC != 3 {
		t.Fatalf("expected 3 code lines, got %d", m.LOC)
	}
}

func TestCalculateMetricsCyclomaticComplexity(t *testing.T) {
	src := `func f(x int) int {
	if x > 0 {
		return 1
	} else if x < 0 {
		return -1
	}
	for i := 0; i < 10; i++ {
		if i == 5 && x > 0 {
			return i
		}
	}
	return 0
}`
	m := CalculateMetrics([]byte(src), nil)
	// base 1 + if + else + if + for + if + && = 7
	if m.CyclomaticComplexity < 5 {
		t.Fatalf("expected cyclomatic complexity >= 5, got %d", m.CyclomaticComplexity)
	}
}

func TestCalculateMetricsMaintainabilityIndexIsClamped(t *testing.T) {
	m := CalculateMetrics([]byte(""), nil)
	if m.MaintainabilityIndex < 0 || m.MaintainabilityIndex > 100 {
		t.Fatalf("expected maintainability index in [0, 100], got %f", m.MaintainabilityIndex)
	}
}

func TestCalculateMetricsTechDebtIncludesIssueCount(t *testing.T) {
	src := "func f() {}\n"
	withoutIssues := CalculateMetrics([]byte(src), nil)
	withIssues := CalculateMetrics([]byte(src), []models.Issue{{}, {}})
	if withIssues.TechDebtHours <= withoutIssues.TechDebtHours {
		t.Fatalf("expected tech debt to grow with issue count: without=%f with=%f",
			withoutIssues.TechDebtHours, withIssues.TechDebtHours)
	}
	if withIssues.TechDebtHours-withoutIssues.TechDebtHours != 4 {
		t.Fatalf("expected tech debt to grow by 2 hours per issue (2 issues), got delta %f",
			withIssues.TechDebtHours-withoutIssues.TechDebtHours)
	}
}
