package dedupe

import (
	"cmp"
	"regexp"
	"slices"
	"unicode/utf8"

	"github.com/poiesic/scriptorium/core"
)

var (
	chapterPattern  = regexp.MustCompile(`第[一二三四五六七八九十百千万\d]+章`)
	hexagramPattern = regexp.MustCompile(`[乾坤震巽坎离艮兑]+卦`)
)

const unknownBook = "unknown"

// DiagnosticOptions tunes Analyze.
type DiagnosticOptions struct {
	// PrefixLen is the fingerprint length for exact duplicates.
	PrefixLen int
	// MarkerWindow is how many leading characters are searched for a chapter marker.
	MarkerWindow int
	// SimilarPrefixLen is the prefix compared for near duplicates.
	SimilarPrefixLen int
	// MinSimilarPrefix skips prefixes this short or shorter.
	MinSimilarPrefix int
}

// DefaultDiagnosticOptions returns the usual thresholds.
func DefaultDiagnosticOptions() DiagnosticOptions {
	return DiagnosticOptions{
		PrefixLen:        core.DefaultPrefixLen,
		MarkerWindow:     50,
		SimilarPrefixLen: 50,
		MinSimilarPrefix: 10,
	}
}

// Count pairs a label with a number of entries.
type Count struct {
	Label string
	Count int
}

// ChapterGroup is a book and chapter marker shared by several entries.
type ChapterGroup struct {
	Book   string
	Marker string
	Count  int
}

// Diagnostics is a read-only report on a batch of staged entries.
type Diagnostics struct {
	Total            int
	ExactDuplicates  []Duplicate[*core.Entry]
	Books            []Count // sorted by count descending
	ChapterGroups    []ChapterGroup
	RepeatedPrefixes []Count // sorted by count descending
}

// Analyze reports exact duplicates, per-book counts, chapters that appear more
// than once within a book, and repeated content prefixes.
func Analyze(entries []*core.Entry, opts DiagnosticOptions) Diagnostics {
	d := Diagnostics{
		Total:           len(entries),
		ExactDuplicates: Dedupe(entries, opts.PrefixLen).Duplicates,
	}

	books := map[string]int{}
	type chapterKey struct{ book, marker string }
	chapters := map[chapterKey]int{}
	var chapterOrder []chapterKey
	prefixes := map[string]int{}
	var prefixOrder []string

	for _, e := range entries {
		book := bookOf(e)
		books[book]++

		if marker := chapterMarker(e.Content, opts.MarkerWindow); marker != "" {
			k := chapterKey{book, marker}
			if chapters[k] == 0 {
				chapterOrder = append(chapterOrder, k)
			}
			chapters[k]++
		}

		prefix := core.Prefix(e.Content, opts.SimilarPrefixLen)
		if utf8.RuneCountInString(prefix) > opts.MinSimilarPrefix {
			if prefixes[prefix] == 0 {
				prefixOrder = append(prefixOrder, prefix)
			}
			prefixes[prefix]++
		}
	}

	for book, n := range books {
		d.Books = append(d.Books, Count{Label: book, Count: n})
	}
	sortCounts(d.Books)

	for _, k := range chapterOrder {
		if n := chapters[k]; n > 1 {
			d.ChapterGroups = append(d.ChapterGroups, ChapterGroup{Book: k.book, Marker: k.marker, Count: n})
		}
	}

	for _, p := range prefixOrder {
		if n := prefixes[p]; n > 1 {
			d.RepeatedPrefixes = append(d.RepeatedPrefixes, Count{Label: p, Count: n})
		}
	}
	sortCounts(d.RepeatedPrefixes)

	return d
}

func bookOf(e *core.Entry) string {
	switch {
	case e.Source != "":
		return e.Source
	case e.Book != "":
		return e.Book
	default:
		return unknownBook
	}
}

// chapterMarker finds a 第…章 or …卦 marker in the first window characters.
func chapterMarker(content string, window int) string {
	head := core.Prefix(content, window)
	if m := chapterPattern.FindString(head); m != "" {
		return m
	}
	return hexagramPattern.FindString(head)
}

// sortCounts orders by count descending, then label ascending.
func sortCounts(c []Count) {
	slices.SortStableFunc(c, func(a, b Count) int {
		if n := cmp.Compare(b.Count, a.Count); n != 0 {
			return n
		}
		return cmp.Compare(a.Label, b.Label)
	})
}
