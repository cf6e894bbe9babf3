package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/verte-zerg/wlsplit/internal/model"
	"github.com/verte-zerg/wlsplit/internal/splits"
)

const (
	sparkChars  = " .:-=+*#%@"
	trendWindow = 5
)

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i := range values {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// Render prints the summary, the attempt list and the per-split table.
func Render(w io.Writer, r Report) error {
	if err := RenderSummary(w, r); err != nil {
		return err
	}
	if len(r.Attempts) == 0 {
		return nil
	}
	if err := RenderAttempts(w, r.Attempts); err != nil {
		return err
	}
	return RenderSplits(w, r.Splits)
}

// RenderSummary prints attempt counts, completion and finished-run times.
func RenderSummary(w io.Writer, r Report) error {
	title := strings.TrimSpace(r.Game + " " + r.Category)
	if title == "" {
		title = "All runs"
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	if len(r.Attempts) == 0 {
		_, err := fmt.Fprintln(w, "No attempts found.")
		return err
	}

	var finished []float64
	var best, total time.Duration
	for _, a := range r.Attempts {
		if !a.Finished {
			continue
		}
		finished = append(finished, a.Elapsed.Seconds())
		total += a.Elapsed
		if best == 0 || a.Elapsed < best {
			best = a.Elapsed
		}
	}
	lines := []string{
		fmt.Sprintf("Attempts: %d", len(r.Attempts)),
		fmt.Sprintf("Finished: %d (%.1f%%)", len(finished), float64(len(finished))/float64(len(r.Attempts))*100),
	}
	if len(finished) > 0 {
		avg := total / time.Duration(len(finished))
		lines = append(lines,
			"Best: "+splits.FormatShort(best),
			"Average: "+splits.FormatShort(avg),
		)
		if len(finished) > 1 {
			lines = append(lines, "Trend: "+Sparkline(MovingAverage(finished, trendWindow)))
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderAttempts prints one row per attempt, oldest first.
func RenderAttempts(w io.Writer, attempts []model.AttemptAggregate) error {
	if _, err := fmt.Fprintln(w, "Attempts"); err != nil {
		return err
	}
	headers := []string{"#", "Started", "Result", "Time"}
	rows := make([][]string, 0, len(attempts))
	for i, a := range attempts {
		result := "reset"
		if a.Finished {
			result = "finished"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			a.StartedAt.Local().Format("2006-01-02 15:04"),
			result,
			splits.FormatShort(a.Elapsed),
		})
	}
	return writeTable(w, headers, rows, map[int]bool{0: true, 3: true})
}

// RenderSplits prints how often each split was reached with its average and
// fastest recorded time.
func RenderSplits(w io.Writer, aggs []model.SplitAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No split times recorded.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Splits"); err != nil {
		return err
	}
	headers := []string{"Split", "Reached", "Average", "Fastest"}
	rows := make([][]string, 0, len(aggs))
	for _, agg := range aggs {
		avg, fastest := "-", "-"
		if agg.Count > 0 {
			avg = splits.FormatShort(time.Duration(agg.SumMs/int64(agg.Count)) * time.Millisecond)
			fastest = splits.FormatShort(time.Duration(agg.MinMs) * time.Millisecond)
		}
		rows = append(rows, []string{
			agg.Name,
			fmt.Sprintf("%d", agg.Count),
			avg,
			fastest,
		})
	}
	return writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true})
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool) error {
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
