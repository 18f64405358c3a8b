package dedupe

import (
	"github.com/poiesic/scriptorium/core"
)

// Passage is anything with fingerprintable text.
type Passage interface {
	Text() string
}

// Duplicate describes an item dropped because an earlier item shares its key.
type Duplicate[T Passage] struct {
	Index      int // position in the input
	FirstIndex int // position of the kept item with the same key
	Key        core.FingerprintKey
	Item       T
}

// Result splits the input into kept and dropped items.
type Result[T Passage] struct {
	Unique      []T
	UniqueIndex []int // input position of each Unique item
	Duplicates  []Duplicate[T]
}

// Dedupe keeps the first item for each fingerprint of the first prefixLen
// characters and drops the rest. Unique preserves input order. The input
// is not modified.
func Dedupe[T Passage](items []T, prefixLen int) Result[T] {
	firstSeen := make(map[core.FingerprintKey]int, len(items))
	res := Result[T]{
		Unique:      make([]T, 0, len(items)),
		UniqueIndex: make([]int, 0, len(items)),
	}

	for i, item := range items {
		key := core.Fingerprint(item.Text(), prefixLen)
		if first, ok := firstSeen[key]; ok {
			res.Duplicates = append(res.Duplicates, Duplicate[T]{
				Index:      i,
				FirstIndex: first,
				Key:        key,
				Item:       item,
			})
			continue
		}
		firstSeen[key] = i
		res.Unique = append(res.Unique, item)
		res.UniqueIndex = append(res.UniqueIndex, i)
	}

	return res
}
