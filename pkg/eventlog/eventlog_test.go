package eventlog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmicdash/pmicdash/pkg/clock"
)

func TestLog_AppendFormatsTimestamp(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 4, 9, 5, 7, 0, time.Local))
	l := New(10, clk)

	l.Append("PMIC Enabled")

	require.Equal(t, 1, l.Len())
	assert.Equal(t, "[09:05:07] PMIC Enabled", l.String())
}

func TestLog_EvictsOldestAtCapacity(t *testing.T) {
	l := New(DefaultCapacity, clock.NewFakeClock(time.Unix(0, 0)))

	for i := 0; i < DefaultCapacity; i++ {
		l.Append(fmt.Sprintf("entry %d", i))
	}
	require.Equal(t, DefaultCapacity, l.Len())

	l.Append("entry 100")

	entries := l.Entries()
	require.Len(t, entries, DefaultCapacity)
	assert.Equal(t, "entry 1", entries[0].Message)
	assert.Equal(t, "entry 100", entries[len(entries)-1].Message)
}

func TestLog_NeverExceedsCapacity(t *testing.T) {
	l := New(5, nil)
	for i := 0; i < 50; i++ {
		l.Append("x")
		assert.LessOrEqual(t, l.Len(), 5)
	}
}

func TestLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0, nil).Capacity())
}

func TestLog_EntriesIsCopy(t *testing.T) {
	l := New(3, nil)
	l.Append("a")

	entries := l.Entries()
	entries[0].Message = "mutated"

	assert.Equal(t, "a", l.Entries()[0].Message)
}

func TestLog_StringJoinsWithNewlines(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local))
	l := New(3, clk)
	l.Append("one")
	clk.Advance(time.Second)
	l.Append("two")

	assert.Equal(t, "[00:00:00] one\n[00:00:01] two", l.String())
}
