package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// PrintReport prints the report with colors for each kind of entry
func PrintReport(w io.Writer, r *Report) error {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Summary color depends on the worst finding
	summaryColor := green
	if r.Warnings > 0 {
		summaryColor = yellow
	}
	if r.Errors > 0 {
		summaryColor = red
	}

	for _, e := range r.Entries {
		c := color.New()
		switch e.Kind {
		case KindHeader:
			c = bold
		case KindWarning:
			c = yellow
		case KindHint:
			c = cyan
		case KindError:
			c = red
		case KindSummary:
			c = summaryColor
		}
		if _, err := c.Fprint(w, e.Text); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
