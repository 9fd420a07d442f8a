package report

import (
	"fmt"
	"os"
	"testing"
	"time"

	"fimwatch/internal/drift"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func result(i int, drifted bool) *drift.ScanResult {
	at := time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
	res := &drift.ScanResult{
		ID:         fmt.Sprintf("scan-%d", i),
		Root:       "/data",
		StartedAt:  at,
		FinishedAt: at.Add(time.Millisecond),
		Unchanged:  []string{"a", "b"},
		Modified:   []string{},
		New:        []string{},
		Missing:    []string{},
	}
	if drifted {
		res.New = []string{"c"}
		res.Changes = []drift.Change{{Path: "c", Kind: drift.New}}
	}
	return res
}

func TestJournalMissingFile(t *testing.T) {
	j := NewJournal(afero.NewMemMapFs(), "/var/fim/report.jsonl")

	entries, err := j.Tail(5)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, ok, err := j.Latest()
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = j.LastAnomaly()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJournalAppendAndTail(t *testing.T) {
	j := NewJournal(afero.NewMemMapFs(), "/var/fim/report.jsonl")

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(result(i, i%2 == 1)))
	}

	entries, err := j.Tail(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []string{"scan-2", "scan-3", "scan-4"},
		[]string{entries[0].ID, entries[1].ID, entries[2].ID})

	require.True(t, entries[1].Drift)
	require.Equal(t, []string{"c"}, entries[1].New)
	require.Equal(t, 2, entries[1].Unchanged)
	require.False(t, entries[2].Drift)

	all, err := j.Tail(100)
	require.NoError(t, err)
	require.Len(t, all, 5)

	latest, ok, err := j.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "scan-4", latest.ID)

	anomaly, ok, err := j.LastAnomaly()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "scan-3", anomaly.ID)
	require.True(t, latest.FinishedAt.Equal(time.Date(2024, 1, 1, 0, 0, 4, int(time.Millisecond), time.UTC)))
}

func TestJournalSkipsBadLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := NewJournal(fs, "/r.jsonl")

	require.NoError(t, j.Append(result(0, false)))
	f, err := fs.OpenFile("/r.jsonl", os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("{truncated\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, j.Append(result(1, true)))

	entries, err := j.Tail(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "scan-1", entries[1].ID)
}

func TestJournalTailWrapsAround(t *testing.T) {
	j := NewJournal(afero.NewMemMapFs(), "/var/fim/report.jsonl")
	for i := 0; i < 10; i++ {
		require.NoError(t, j.Append(result(i, false)))
	}

	for n, want := range map[int][]string{
		1: {"scan-9"},
		3: {"scan-7", "scan-8", "scan-9"},
		4: {"scan-6", "scan-7", "scan-8", "scan-9"},
	} {
		entries, err := j.Tail(n)
		require.NoError(t, err)

		var ids []string
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
		require.Equal(t, want, ids, "tail %d", n)
	}
}
