package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/viseme"
)

// ffNum formats a number for an ffmpeg expression with the shortest
// exact representation, so regenerated filter scripts are
// byte-identical.
func ffNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// floatExpr is the ambient bob as an ffmpeg y-offset expression.
// t0 shifts segment-local time to absolute run time so motion is
// continuous across segment boundaries.
func floatExpr(p motion.Params, t0 float64) string {
	return fmt.Sprintf("%s*sin(2*PI*%s*(t+%s))",
		ffNum(p.FloatAmplitude), ffNum(p.FloatFrequency), ffNum(t0))
}

// shakeExpr is the logo tremble as an ffmpeg x-offset expression.
func shakeExpr(p motion.Params, t0 float64) string {
	return fmt.Sprintf("%s*sin(2*PI*%s*(t+%s))",
		ffNum(p.ShakeAmplitude), ffNum(p.ShakeFrequency), ffNum(t0))
}

// bounceExpr maps segment time onto a 0..1 triangle wave starting at
// tStart with the given half-period, scaled by travel (an ffmpeg
// expression for the pixel range). Same fold as motion.Bounce.
func bounceExpr(travel string, tStart, period float64) string {
	return fmt.Sprintf("(%s)*(1-abs(1-mod((t-%s)/%s,2)))",
		travel, ffNum(tStart), ffNum(period))
}

// enableRuns renders mouth-open intervals as an overlay enable
// expression over output frame numbers. between() is inclusive, runs
// are half-open.
func enableRuns(runs []viseme.Run) string {
	if len(runs) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		parts = append(parts, fmt.Sprintf("between(n,%d,%d)", r.Start, r.End-1))
	}
	return strings.Join(parts, "+")
}

// wrapRunes hard-wraps text to at most width runes per line. Captions
// are mostly CJK with no word boundaries, so wrapping is positional.
// Existing newlines are kept.
func wrapRunes(text string, width int) string {
	if width < 1 {
		return text
	}
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		runes := []rune(line)
		for len(runes) > width {
			b.WriteString(string(runes[:width]))
			b.WriteByte('\n')
			runes = runes[width:]
		}
		b.WriteString(string(runes))
	}
	return b.String()
}

// countLines returns the number of rendered text lines.
func countLines(text string) int {
	return strings.Count(text, "\n") + 1
}

// graphBuilder accumulates filtergraph chains with generated labels.
type graphBuilder struct {
	chains []string
	labels int
}

// next returns a fresh intermediate label.
func (g *graphBuilder) next() string {
	g.labels++
	return fmt.Sprintf("s%d", g.labels)
}

// add appends one filter chain line.
func (g *graphBuilder) add(format string, args ...any) {
	g.chains = append(g.chains, fmt.Sprintf(format, args...))
}

// String renders the graph with one chain per line, which keeps the
// generated .filter files reviewable.
func (g *graphBuilder) String() string {
	return strings.Join(g.chains, ";\n")
}
