package domain

import (
	"fmt"
	"strings"
)

// Gap is an inclusive range of missing sequences.
type Gap struct {
	From int32
	To   int32
}

// String returns the gap in "from-to" format, or a single number for a one-wide gap.
func (g Gap) String() string {
	if g.From == g.To {
		return fmt.Sprintf("%d", g.From)
	}
	return fmt.Sprintf("%d-%d", g.From, g.To)
}

// Size returns the number of sequences in the gap.
func (g Gap) Size() int {
	return int(g.To-g.From) + 1
}

// Gaps coalesces an ascending list of sequences into contiguous ranges.
func Gaps(seqs []int32) []Gap {
	if len(seqs) == 0 {
		return nil
	}
	gaps := []Gap{{From: seqs[0], To: seqs[0]}}
	for _, seq := range seqs[1:] {
		last := &gaps[len(gaps)-1]
		if seq == last.To+1 {
			last.To = seq
			continue
		}
		gaps = append(gaps, Gap{From: seq, To: seq})
	}
	return gaps
}

// FormatGaps renders gaps as a comma-separated list for log lines.
func FormatGaps(gaps []Gap) string {
	parts := make([]string, len(gaps))
	for i, g := range gaps {
		parts[i] = g.String()
	}
	return strings.Join(parts, ",")
}
