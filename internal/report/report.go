package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backtest_go/internal/engine"
	"backtest_go/internal/metrics"
)

// Writer renders run results into an output directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write persists the textual report, the JSON result and the equity
// chart for a run. Returns the paths written.
func (w *Writer) Write(res *engine.Result) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	base := fmt.Sprintf("run_%s_%s", stamp, res.RunID.String()[:8])

	var written []string

	textPath := filepath.Join(w.dir, base+".txt")
	if err := os.WriteFile(textPath, []byte(Render(res)), 0o644); err != nil {
		return written, fmt.Errorf("writing text report: %w", err)
	}
	written = append(written, textPath)

	jsonPath := filepath.Join(w.dir, base+".json")
	payload, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return written, fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return written, fmt.Errorf("writing json result: %w", err)
	}
	written = append(written, jsonPath)

	if len(res.Curve) >= 2 {
		chartPath := filepath.Join(w.dir, base+".png")
		if err := WriteEquityChart(chartPath, res.Curve); err != nil {
			return written, fmt.Errorf("writing equity chart: %w", err)
		}
		written = append(written, chartPath)
	}

	return written, nil
}

// Render produces the human-readable summary block of a run.
func Render(res *engine.Result) string {
	var b strings.Builder
	line := strings.Repeat("=", 52)

	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "  BACKTEST REPORT  %s\n", res.RunID)
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Strategy:        %s\n", res.Strategy)
	fmt.Fprintf(&b, "Instrument:      %s\n", res.Config.Instrument)
	fmt.Fprintf(&b, "Window:          %s .. %s\n",
		res.Config.Start.Format("2006-01-02 15:04"),
		res.Config.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Final state:     %s\n", res.FinalState)
	if res.Err != nil {
		fmt.Fprintf(&b, "Failure:         %v\n", res.Err)
	}

	fmt.Fprintln(&b, strings.Repeat("-", 52))
	m := res.Metrics
	fmt.Fprintf(&b, "Start equity:    %.2f\n", m.StartEquity)
	fmt.Fprintf(&b, "End equity:      %.2f\n", m.EndEquity)
	fmt.Fprintf(&b, "Total return:    %.2f%%\n", m.TotalReturn)
	fmt.Fprintf(&b, "Annualized:      %s\n", formatRatio(m.AnnualizedReturn, "%.2f%%"))
	fmt.Fprintf(&b, "Max drawdown:    %.2f%%\n", m.MaxDrawdown)
	fmt.Fprintf(&b, "Risk adjusted:   %s\n", formatRatio(m.RiskAdjusted, "%.2f"))

	fmt.Fprintln(&b, strings.Repeat("-", 52))
	fmt.Fprintf(&b, "Trades:          %d (%d wins / %d losses)\n", m.Trades, m.WinningCount, m.LosingCount)
	fmt.Fprintf(&b, "Win rate:        %.1f%%\n", m.WinRate)
	fmt.Fprintf(&b, "Profit factor:   %s\n", formatRatio(m.ProfitFactor, "%.2f"))
	fmt.Fprintf(&b, "Avg win / loss:  %s / %s\n",
		formatRatio(m.AverageWin, "%.4f"), formatRatio(m.AverageLoss, "%.4f"))
	fmt.Fprintf(&b, "Largest win:     %.4f\n", m.LargestWin)
	fmt.Fprintf(&b, "Largest loss:    %.4f\n", m.LargestLoss)
	fmt.Fprintf(&b, "Total volume:    %.2f\n", m.TotalVolume)
	fmt.Fprintf(&b, "Total fees:      %.4f\n", m.TotalFees)

	if len(res.IterationErrors) > 0 {
		fmt.Fprintln(&b, strings.Repeat("-", 52))
		fmt.Fprintf(&b, "Strategy errors: %d\n", len(res.IterationErrors))
		for i, e := range res.IterationErrors {
			if i == 5 {
				fmt.Fprintf(&b, "  ... and %d more\n", len(res.IterationErrors)-5)
				break
			}
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}

	fmt.Fprintln(&b, line)
	return b.String()
}

func formatRatio(r metrics.Ratio, verb string) string {
	if !r.Valid {
		return "n/a"
	}
	return fmt.Sprintf(verb, r.Value)
}
