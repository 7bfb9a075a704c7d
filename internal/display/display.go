package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/models"
)

var (
	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6")).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 2)

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED"))

	buyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	sellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	waitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// ResultsDisplay renders a finished pipeline run for the terminal.
type ResultsDisplay struct {
	out io.Writer
}

func NewResultsDisplay(out io.Writer) *ResultsDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &ResultsDisplay{out: out}
}

func (d *ResultsDisplay) DisplayRun(pc models.PipelineContext) {
	fmt.Fprintln(d.out, Render(pc))
}

// Render builds the full styled report for pc.
func Render(pc models.PipelineContext) string {
	var b strings.Builder
	req := pc.Request

	header := fmt.Sprintf("📊 %s | %s x %s | %s | %s", req.Symbol, req.Interval, req.Range, req.Provider, req.Market)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("🎯 Decision"))
	b.WriteString("\n")
	if pc.Suggestion != nil {
		s := pc.Suggestion
		fmt.Fprintf(&b, "  Action:     %s\n", actionStyle(s.Action).Render(strings.ToUpper(s.Action)))
		fmt.Fprintf(&b, "  Entry:      %s\n", formatLevel(s.Entry))
		fmt.Fprintf(&b, "  Stop:       %s\n", formatLevel(s.Stop))
		fmt.Fprintf(&b, "  Targets:    %s\n", formatTargets(s.Targets))
		fmt.Fprintf(&b, "  Size:       %.4f\n", s.Size)
		fmt.Fprintf(&b, "  Confidence: %.2f\n", s.Confidence)
		if s.Rationale != "" {
			fmt.Fprintf(&b, "  Rationale:  %s\n", s.Rationale)
		}
	} else {
		b.WriteString(mutedStyle.Render("  no suggestion"))
		b.WriteString("\n")
	}
	if pc.Score != nil {
		fmt.Fprintf(&b, "  Score:      %.2f (%s)\n", *pc.Score, pc.ScoreReason)
	}
	b.WriteString("\n")

	if pc.Indicators != nil {
		ind := pc.Indicators
		b.WriteString(sectionStyle.Render("📈 Indicators"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  EMA20 %.4f  EMA50 %.4f  trend %s\n", ind.EMAFast, ind.EMASlow, ind.Trend())
		fmt.Fprintf(&b, "  RSI14 %.2f  ATR14 %.4f\n", ind.RSI, ind.ATR)
		fmt.Fprintf(&b, "  MACD %.4f  signal %.4f  hist %.4f\n", ind.MACD.Line, ind.MACD.Signal, ind.MACD.Histogram)
		fmt.Fprintf(&b, "  %d candles\n\n", len(pc.Candles))
	}

	if f := pc.ImageFindings; f != nil {
		b.WriteString(sectionStyle.Render("🖼  Chart"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Signal: %s (%.2f)\n", f.Signal.Direction, f.Signal.Confidence)
		if len(f.Patterns) > 0 {
			fmt.Fprintf(&b, "  Patterns: %s\n", strings.Join(f.Patterns, ", "))
		}
		if f.Notes != "" {
			fmt.Fprintf(&b, "  Notes: %s\n", f.Notes)
		}
		b.WriteString("\n")
	}

	if len(pc.SearchResults) > 0 {
		b.WriteString(sectionStyle.Render("📰 News"))
		b.WriteString("\n")
		for _, r := range pc.SearchResults {
			fmt.Fprintf(&b, "  • %s\n", r.Title)
			if r.Content != "" {
				fmt.Fprintf(&b, "    %s\n", truncate(r.Content, 160))
			}
		}
		b.WriteString("\n")
	}

	if a := pc.RiskAudit; a != nil {
		b.WriteString(sectionStyle.Render("🛡  Risk"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Risk %.2f of %.2f allowed", a.RiskAmount, a.MaxRiskAmount)
		if a.RewardRisk != nil {
			fmt.Fprintf(&b, ", R:R %.2f", *a.RewardRisk)
		}
		b.WriteString("\n")
		for _, v := range a.Violations {
			b.WriteString(errorStyle.Render("  ! " + v))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(pc.StageErrors) > 0 {
		b.WriteString(sectionStyle.Render("⚠️  Stage errors"))
		b.WriteString("\n")
		for _, e := range pc.StageErrors {
			b.WriteString(errorStyle.Render(fmt.Sprintf("  [%s] %s", e.Stage, e.Message)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if !pc.FinishedAt.IsZero() {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("run %s finished in %s", pc.RunID, pc.FinishedAt.Sub(pc.StartedAt).Round(time.Millisecond))))
	}
	return b.String()
}

// Markdown renders pc as a plain markdown report for the results directory.
func Markdown(pc models.PipelineContext) string {
	var b strings.Builder
	req := pc.Request
	fmt.Fprintf(&b, "# %s decision\n\n", req.Symbol)
	fmt.Fprintf(&b, "- Run: %s\n- Interval: %s\n- Range: %s\n- Provider: %s\n- Market: %s\n",
		pc.RunID, req.Interval, req.Range, req.Provider, req.Market)
	if !pc.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", pc.StartedAt.Format(time.RFC3339))
	}

	b.WriteString("\n## Suggestion\n\n")
	if s := pc.Suggestion; s != nil {
		fmt.Fprintf(&b, "| Action | Entry | Stop | Targets | Size | Confidence |\n|---|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %.4f | %.2f |\n\n", s.Action, formatLevel(s.Entry), formatLevel(s.Stop), formatTargets(s.Targets), s.Size, s.Confidence)
		if s.Rationale != "" {
			fmt.Fprintf(&b, "%s\n", s.Rationale)
		}
	} else {
		b.WriteString("No suggestion.\n")
	}
	if pc.Score != nil {
		fmt.Fprintf(&b, "\n**Score:** %.2f (%s)\n", *pc.Score, pc.ScoreReason)
	}

	if ind := pc.Indicators; ind != nil {
		b.WriteString("\n## Indicators\n\n")
		fmt.Fprintf(&b, "- EMA20: %.4f\n- EMA50: %.4f\n- RSI14: %.2f\n- ATR14: %.4f\n- MACD: %.4f / %.4f / %.4f\n",
			ind.EMAFast, ind.EMASlow, ind.RSI, ind.ATR, ind.MACD.Line, ind.MACD.Signal, ind.MACD.Histogram)
	}

	if len(pc.SearchResults) > 0 {
		b.WriteString("\n## News\n\n")
		for _, r := range pc.SearchResults {
			fmt.Fprintf(&b, "- [%s](%s): %s\n", r.Title, r.URL, r.Content)
		}
	}

	if len(pc.StageErrors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range pc.StageErrors {
			fmt.Fprintf(&b, "- `%s`: %s\n", e.Stage, e.Message)
		}
	}
	return b.String()
}

// SaveResults writes the JSON context, a markdown report and the candles as CSV
// under dir/SYMBOL/DATE and returns the directory.
func SaveResults(pc models.PipelineContext, dir string) (string, error) {
	date := pc.StartedAt
	if date.IsZero() {
		date = time.Now().UTC()
	}
	name := pc.RunID
	if name == "" {
		name = date.Format("150405")
	}
	target := filepath.Join(dir, sanitize(pc.Request.Symbol), date.Format("2006-01-02"))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	data, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	if err := os.WriteFile(filepath.Join(target, name+".json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write run json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(target, name+".md"), []byte(Markdown(pc)), 0o644); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}
	if len(pc.Candles) > 0 {
		if err := WriteCandlesCSV(filepath.Join(target, name+"_candles.csv"), pc.Request.Symbol, pc.Candles); err != nil {
			return "", err
		}
	}
	return target, nil
}

func actionStyle(action string) lipgloss.Style {
	switch action {
	case consts.ActionBuy:
		return buyStyle
	case consts.ActionSell:
		return sellStyle
	default:
		return waitStyle
	}
}

func formatLevel(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func formatTargets(ts []float64) string {
	if len(ts) == 0 {
		return "-"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = fmt.Sprintf("%.4f", t)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func sanitize(name string) string {
	if name == "" {
		return "UNKNOWN"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
