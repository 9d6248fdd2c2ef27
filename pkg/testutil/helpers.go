package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// NewUUID returns a fresh UUID string for fixtures
func NewUUID() string {
	return uuid.New().String()
}

// MustParseTime parses an RFC3339 timestamp or fails the test
func MustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return ts
}

// MustParseDate parses a YYYY-MM-DD civil date in UTC or fails the test
func MustParseDate(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", value, err)
	}
	return ts
}

// MustLoadLocation loads a timezone or fails the test
func MustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load location %q: %v", name, err)
	}
	return loc
}
