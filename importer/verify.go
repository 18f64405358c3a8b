package importer

import (
	"context"
	"fmt"

	"github.com/poiesic/scriptorium/storage"
)

// Verification reconciles the stored row count with the expected total.
type Verification struct {
	Actual   int
	Expected int
	OK       bool
	ShortBy  int
	ExcessBy int
}

func (v Verification) String() string {
	switch {
	case v.OK:
		return fmt.Sprintf("ok: %d records", v.Actual)
	case v.ShortBy > 0:
		return fmt.Sprintf("short by %d: have %d, expected %d", v.ShortBy, v.Actual, v.Expected)
	default:
		return fmt.Sprintf("excess of %d: have %d, expected %d", v.ExcessBy, v.Actual, v.Expected)
	}
}

// Verify compares actual and expected counts.
func Verify(actual, expected int) Verification {
	return Verification{
		Actual:   actual,
		Expected: expected,
		OK:       actual == expected,
		ShortBy:  max(0, expected-actual),
		ExcessBy: max(0, actual-expected),
	}
}

// VerifyStore counts the stored records and verifies them against expected.
func VerifyStore(ctx context.Context, counter storage.RecordCounter, expected int) (Verification, error) {
	actual, err := counter.CountRecords(ctx, storage.Filter{})
	if err != nil {
		return Verification{}, fmt.Errorf("count records: %w", err)
	}
	return Verify(actual, expected), nil
}
