package main

import (
	"fmt"
	"io"
	"math"
	"strings"
)

const plotWidth = 50

// plotScores draws one horizontal bar per combination index, scaled to the
// largest merit value. The best combination is marked with an asterisk.
func plotScores(w io.Writer, scores []float64, best, width int) {
	if len(scores) == 0 {
		return
	}

	maxScore := 0.0
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}

	digits := len(fmt.Sprint(len(scores) - 1))
	for i, s := range scores {
		n := 0
		if maxScore > 0 {
			n = int(math.Round(s / maxScore * float64(width)))
		}
		mark := " "
		if i == best {
			mark = "*"
		}
		fmt.Fprintf(w, "%*d %s|%-*s %.6g\n", digits, i, mark, width, strings.Repeat("#", n), s)
	}
}
