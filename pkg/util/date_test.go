package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeUnixMillis(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 500*int(time.Millisecond), time.UTC)
	got, ok := ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	assert.True(t, ok)
	assert.True(t, want.Equal(got))
}

func TestParseTimeCSVLayouts(t *testing.T) {
	for _, s := range []string{"2024-10-10", "2024-10-10 00:00:00", "10/10/2024"} {
		got, ok := ParseTime(s)
		assert.True(t, ok, s)
		assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), got, s)
	}
	_, ok := ParseTime("yesterday")
	assert.False(t, ok)
}

func TestBucketStart(t *testing.T) {
	at := time.Date(2024, 10, 10, 10, 17, 42, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 10, 10, 10, 15, 0, 0, time.UTC), BucketStart(at, 5*time.Minute))
	assert.Equal(t, time.Date(2024, 10, 10, 10, 17, 0, 0, time.UTC), BucketStart(at, time.Minute))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol(" nasdaq:aapl "))
	assert.Equal(t, "BRK.B", NormalizeSymbol("brk.b"))
}
