package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
)

// maxErrorLines bounds the error samples printed by Summary.
const maxErrorLines = 10

// RunReport collects the outcome of every stage of a run. Entry indices in
// Embedding.Errors and Skipped are positions in the input passed to Run.
type RunReport struct {
	Mode             core.Mode
	Input            int
	Unique           int
	Duplicates       int
	ExistingBefore   int
	AlreadyStored    int
	PendingEmbedding int
	Embedding        embed.Report
	Skipped          []importer.Skip
	Import           *importer.Report
	ExpectedTotal    int
	Verification     *importer.Verification
	Duration         time.Duration
}

// Summary prints a human readable report to w.
func (r *RunReport) Summary(w io.Writer) {
	fmt.Fprintf(w, "Mode:             %s\n", r.Mode)
	fmt.Fprintf(w, "Input entries:    %d\n", r.Input)
	fmt.Fprintf(w, "Unique:           %d (%d duplicates dropped)\n", r.Unique, r.Duplicates)
	if r.AlreadyStored > 0 {
		fmt.Fprintf(w, "Already stored:   %d\n", r.AlreadyStored)
	}
	if r.PendingEmbedding > 0 {
		fmt.Fprintf(w, "Need embedding:   %d\n", r.PendingEmbedding)
	}
	if r.Embedding.Total > 0 {
		fmt.Fprintf(w, "Embedded:         %d new, %d existing, %d failed\n",
			r.Embedding.Embedded, r.Embedding.AlreadyEmbedded, r.Embedding.Skipped)
	}
	fmt.Fprintf(w, "Skipped:          %d\n", len(r.Skipped))
	if r.Import != nil {
		fmt.Fprintf(w, "Import run:       %s\n", r.Import.RunID)
		fmt.Fprintf(w, "Chunks:           %d\n", r.Import.Chunks)
		fmt.Fprintf(w, "Imported:         %d\n", r.Import.SuccessCount)
		fmt.Fprintf(w, "Failed:           %d\n", r.Import.ErrorCount)
	}
	if r.Verification != nil {
		fmt.Fprintf(w, "Verification:     %s\n", r.Verification)
	}
	fmt.Fprintf(w, "Duration:         %s\n", r.Duration.Round(time.Millisecond))

	lines := r.errorLines()
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(w, "Errors:")
	for _, line := range lines[:min(len(lines), maxErrorLines)] {
		fmt.Fprintf(w, "  - %s\n", line)
	}
	if len(lines) > maxErrorLines {
		fmt.Fprintf(w, "  ... and %d more\n", len(lines)-maxErrorLines)
	}
}

func (r *RunReport) errorLines() []string {
	var lines []string
	reported := make(map[int]bool, len(r.Embedding.Errors))
	for _, e := range r.Embedding.Errors {
		reported[e.Index] = true
		lines = append(lines, fmt.Sprintf("embed entry #%d %q: %v", e.Index, e.Title, e.Err))
	}
	for _, s := range r.Skipped {
		// An entry the embed pass gave up on is skipped for lacking a vector;
		// its embedding error already says why.
		if reported[s.Index] && errors.Is(s.Err, core.ErrMissingEmbedding) {
			continue
		}
		lines = append(lines, fmt.Sprintf("skip entry #%d %q: %v", s.Index, s.Title, s.Err))
	}
	if r.Import != nil {
		lines = append(lines, r.Import.Errors...)
	}
	return lines
}
