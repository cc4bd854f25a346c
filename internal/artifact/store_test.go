package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndLoadRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a := &Artifact{TaskID: "task-1", Version: 1, Content: "v1 content"}
	require.NoError(t, s.Save(a))

	got, err := s.Load("task-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "v1 content", got.Content)
}

func TestStoreVersionsAreImmutable(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(&Artifact{TaskID: "t", Version: 1, Content: "a"}))
	err = s.Save(&Artifact{TaskID: "t", Version: 1, Content: "b"})
	assert.Error(t, err)

	got, err := s.Load("t", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Content)
}

func TestStoreLatest(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for v := 1; v <= 3; v++ {
		require.NoError(t, s.Save(&Artifact{TaskID: "t", Version: v, Content: string(rune('a' + v))}))
	}

	latest, err := s.Latest("t")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	versions, err := s.Versions("t")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)
}

func TestStatsAndExcerpt(t *testing.T) {
	oldContent := "line one\nline two\nline three\n"
	newContent := "line one\nline 2\nline three\nline four\n"

	stats := Stats(oldContent, newContent)
	assert.Equal(t, 2, stats.LinesAdded)
	assert.Equal(t, 1, stats.LinesRemoved)

	excerpt := Excerpt(oldContent, newContent, 10)
	assert.Contains(t, excerpt, "- line two")
	assert.Contains(t, excerpt, "+ line 2")
	assert.Contains(t, excerpt, "+ line four")

	capped := Excerpt(oldContent, newContent, 1)
	assert.Contains(t, capped, "...")
}
