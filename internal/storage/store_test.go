package storage

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fieldnotes/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testNote(id string) domain.Note {
	return domain.Note{
		ID:            id,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Transcription: "two words",
		Summary:       "two words",
		Insights:      []string{"Duration: 0s", "Language: unknown", "Confidence: 0%"},
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create("Site A", "north lot")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Site A", created.Name)
	require.Empty(t, created.Notes)
	require.False(t, created.LastActivity.Before(created.CreatedAt))

	got, err := store.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "north lot", got.Description)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("  ", "")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestGetUnknownProjectDoesNotAutoCreate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("no-such-id")
	require.ErrorIs(t, err, ErrProjectNotFound)

	// A failed read must not materialize anything.
	require.Empty(t, store.List())
}

func TestUpdateMergesFieldsAndRefreshesActivity(t *testing.T) {
	store := newTestStore(t)
	created, err := store.Create("Before", "desc")
	require.NoError(t, err)

	name := "After"
	updated, err := store.Update(created.ID, ProjectUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "After", updated.Name)
	require.Equal(t, "desc", updated.Description)
	require.False(t, updated.LastActivity.Before(created.LastActivity))

	empty := ""
	_, err = store.Update(created.ID, ProjectUpdate{Name: &empty})
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	created, err := store.Create("Gone", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(created.ID))
	_, err = store.Get(created.ID)
	require.ErrorIs(t, err, ErrProjectNotFound)

	require.ErrorIs(t, store.Delete(created.ID), ErrProjectNotFound)
}

func TestAppendNotePreservesArrivalOrder(t *testing.T) {
	store := newTestStore(t)
	project, err := store.Create("Ordered", "")
	require.NoError(t, err)

	_, err = store.AppendNote(project.ID, testNote("n1"))
	require.NoError(t, err)
	updated, err := store.AppendNote(project.ID, testNote("n2"))
	require.NoError(t, err)

	require.Len(t, updated.Notes, 2)
	require.Equal(t, "n1", updated.Notes[0].ID)
	require.Equal(t, "n2", updated.Notes[1].ID)
	require.False(t, updated.LastActivity.Before(project.CreatedAt))
}

func TestAppendNoteUnknownProject(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Create("Site A", "")
	require.NoError(t, err)

	_, err = store.AppendNote("missing", testNote("n1"))
	require.ErrorIs(t, err, ErrProjectNotFound)

	// Append must not create the project either.
	_, err = store.Get("missing")
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestGetNoteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	project, err := store.Create("RT", "")
	require.NoError(t, err)

	appended := testNote("n1")
	_, err = store.AppendNote(project.ID, appended)
	require.NoError(t, err)

	got, err := store.GetNote(project.ID, "n1")
	require.NoError(t, err)
	require.Equal(t, appended, got)

	_, err = store.GetNote(project.ID, "nope")
	require.ErrorIs(t, err, ErrNoteNotFound)
}

func TestUpdateNote(t *testing.T) {
	store := newTestStore(t)
	project, err := store.Create("Upd", "")
	require.NoError(t, err)
	_, err = store.AppendNote(project.ID, testNote("n1"))
	require.NoError(t, err)

	text := "corrected transcript"
	updated, err := store.UpdateNote(project.ID, "n1", NoteUpdate{Transcription: &text})
	require.NoError(t, err)
	require.Equal(t, "corrected transcript", updated.Transcription)
	require.Equal(t, "two words", updated.Summary)

	got, err := store.GetNote(project.ID, "n1")
	require.NoError(t, err)
	require.Equal(t, "corrected transcript", got.Transcription)
}

func TestRemoveNote(t *testing.T) {
	store := newTestStore(t)
	project, err := store.Create("Rm", "")
	require.NoError(t, err)
	_, err = store.AppendNote(project.ID, testNote("n1"))
	require.NoError(t, err)
	_, err = store.AppendNote(project.ID, testNote("n2"))
	require.NoError(t, err)

	updated, err := store.RemoveNote(project.ID, "n1")
	require.NoError(t, err)
	require.Len(t, updated.Notes, 1)
	require.Equal(t, "n2", updated.Notes[0].ID)

	_, err = store.RemoveNote(project.ID, "n1")
	require.ErrorIs(t, err, ErrNoteNotFound)
}

func TestStatsComputationAndIdempotence(t *testing.T) {
	store := newTestStore(t)
	project, err := store.Create("Stats", "")
	require.NoError(t, err)

	duration := 30
	n1 := testNote("n1")
	n1.AudioPath = "a.webm"
	n1.Duration = &duration
	n2 := testNote("n2")
	n2.ImagePaths = []string{"1.jpg", "2.jpg"}
	n2.Transcription = ""
	_, err = store.AppendNote(project.ID, n1)
	require.NoError(t, err)
	_, err = store.AppendNote(project.ID, n2)
	require.NoError(t, err)

	stats, err := store.Stats(project.ID)
	require.NoError(t, err)
	require.Equal(t, domain.Stats{
		TotalNotes:       2,
		AudioNotes:       1,
		ImageNotes:       1,
		TranscribedNotes: 1,
		TotalWords:       2,
		TotalDuration:    30,
	}, stats)

	again, err := store.Stats(project.ID)
	require.NoError(t, err)
	require.Equal(t, stats, again)
}

func TestGlobalStatsRecentActivity(t *testing.T) {
	store := newTestStore(t)
	first, err := store.Create("First", "")
	require.NoError(t, err)
	second, err := store.Create("Second", "")
	require.NoError(t, err)

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		n := testNote(fmt.Sprintf("n%02d", i))
		n.Timestamp = base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		target := first.ID
		if i%2 == 1 {
			target = second.ID
		}
		_, err = store.AppendNote(target, n)
		require.NoError(t, err)
	}

	global := store.GlobalStats()
	require.Equal(t, 2, global.TotalProjects)
	require.Equal(t, 12, global.Totals.TotalNotes)
	require.Len(t, global.RecentActivity, 10)

	// Newest first, tagged with the owning project's name.
	require.Equal(t, "n11", global.RecentActivity[0].Note.ID)
	require.Equal(t, "Second", global.RecentActivity[0].ProjectName)
	require.Equal(t, "n02", global.RecentActivity[9].Note.ID)

	for i := 1; i < len(global.RecentActivity); i++ {
		require.GreaterOrEqual(t,
			global.RecentActivity[i-1].Note.Timestamp,
			global.RecentActivity[i].Note.Timestamp)
	}
}

func TestConcurrentAppendsAcrossProjects(t *testing.T) {
	store := newTestStore(t)
	first, err := store.Create("P1", "")
	require.NoError(t, err)
	second, err := store.Create("P2", "")
	require.NoError(t, err)

	const perProject = 25
	var wg sync.WaitGroup
	for _, id := range []string{first.ID, second.ID} {
		for i := 0; i < perProject; i++ {
			wg.Add(1)
			go func(projectID string, i int) {
				defer wg.Done()
				if _, err := store.AppendNote(projectID, testNote(fmt.Sprintf("%s-%d", projectID, i))); err != nil {
					t.Errorf("append to %s: %v", projectID, err)
				}
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range []string{first.ID, second.ID} {
		project, err := store.Get(id)
		require.NoError(t, err)
		require.Len(t, project.Notes, perProject)
		require.False(t, project.LastActivity.Before(project.CreatedAt))
	}
}

func TestAppendNoteSnapshotFailureKeepsCommit(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	project, err := store.Create("Flaky", "")
	require.NoError(t, err)

	// Snapshot writes land in the data directory; removing it makes the
	// next persist fail.
	require.NoError(t, os.RemoveAll(dir))

	_, err = store.AppendNote(project.ID, testNote("n1"))
	require.Error(t, err)

	// The append is committed in memory despite the failed snapshot.
	got, err := store.Get(project.ID)
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	require.Equal(t, "n1", got.Notes[0].ID)
}

func TestPersistenceSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	project, err := store.Create("Durable", "kept")
	require.NoError(t, err)
	_, err = store.AppendNote(project.ID, testNote("n1"))
	require.NoError(t, err)

	reloaded, err := NewStore(dir)
	require.NoError(t, err)

	got, err := reloaded.Get(project.ID)
	require.NoError(t, err)
	require.Equal(t, "Durable", got.Name)
	require.Len(t, got.Notes, 1)
	require.Equal(t, "n1", got.Notes[0].ID)
}
