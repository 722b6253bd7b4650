package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldnotes/internal/domain"
)

var (
	// ErrProjectNotFound indicates the project does not exist. The store
	// never materializes projects implicitly, on reads or on appends.
	ErrProjectNotFound = errors.New("project not found")
	// ErrNoteNotFound indicates the note does not exist within the project.
	ErrNoteNotFound = errors.New("note not found")
	// ErrInvalidName indicates an empty project name.
	ErrInvalidName = errors.New("project name must not be empty")
)

const recentActivityLimit = 10

// projectEntry pairs a project with its own mutex so mutations on one
// project never block mutations on another.
type projectEntry struct {
	mu      sync.Mutex
	project domain.Project
}

// Store owns the canonical project/note graph. Map membership is guarded by
// mu; per-project state by the entry mutex. Durability is a JSON snapshot
// (atomic temp-file + rename) serialized by saveMu so file IO never runs
// under a project lock.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*projectEntry

	saveMu sync.Mutex
	path   string
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := &Store{
		entries: map[string]*projectEntry{},
		path:    filepath.Join(baseDir, "meta.json"),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) load() error {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open meta file: %w", err)
	}
	defer file.Close()

	var projects []domain.Project
	if err := json.NewDecoder(file).Decode(&projects); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode meta file: %w", err)
	}

	for _, p := range projects {
		if p.Notes == nil {
			p.Notes = []domain.Note{}
		}
		s.entries[p.ID] = &projectEntry{project: p}
	}
	return nil
}

// Create allocates a fresh project with an empty note list.
func (s *Store) Create(name, description string) (domain.Project, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Project{}, ErrInvalidName
	}

	now := time.Now().UTC()
	project := domain.Project{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		Notes:        []domain.Note{},
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	s.entries[project.ID] = &projectEntry{project: project}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// Get returns a copy of the project, or ErrProjectNotFound. Unknown ids are
// never auto-created.
func (s *Store) Get(id string) (domain.Project, error) {
	entry, ok := s.entry(id)
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyProject(entry.project), nil
}

// List returns all projects ordered by creation time.
func (s *Store) List() []domain.Project {
	s.mu.RLock()
	entries := make([]*projectEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	projects := make([]domain.Project, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		projects = append(projects, copyProject(entry.project))
		entry.mu.Unlock()
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects
}

// ProjectUpdate carries the mutable project fields; nil leaves a field as is.
type ProjectUpdate struct {
	Name        *string
	Description *string
}

// Update merges the given fields and refreshes LastActivity.
func (s *Store) Update(id string, upd ProjectUpdate) (domain.Project, error) {
	entry, ok := s.entry(id)
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}

	entry.mu.Lock()
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			entry.mu.Unlock()
			return domain.Project{}, ErrInvalidName
		}
		entry.project.Name = *upd.Name
	}
	if upd.Description != nil {
		entry.project.Description = *upd.Description
	}
	entry.project.LastActivity = time.Now().UTC()
	updated := copyProject(entry.project)
	entry.mu.Unlock()

	if err := s.persist(); err != nil {
		return domain.Project{}, err
	}
	return updated, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.entries[id]; !ok {
		s.mu.Unlock()
		return ErrProjectNotFound
	}
	delete(s.entries, id)
	s.mu.Unlock()

	return s.persist()
}

// AppendNote atomically appends the note and refreshes LastActivity. The
// project must already exist; append never creates one.
func (s *Store) AppendNote(projectID string, note domain.Note) (domain.Project, error) {
	entry, ok := s.entry(projectID)
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}

	entry.mu.Lock()
	entry.project.Notes = append(entry.project.Notes, note)
	entry.project.LastActivity = time.Now().UTC()
	updated := copyProject(entry.project)
	entry.mu.Unlock()

	if err := s.persist(); err != nil {
		return domain.Project{}, err
	}
	return updated, nil
}

func (s *Store) GetNote(projectID, noteID string) (domain.Note, error) {
	entry, ok := s.entry(projectID)
	if !ok {
		return domain.Note{}, ErrProjectNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, note := range entry.project.Notes {
		if note.ID == noteID {
			return note, nil
		}
	}
	return domain.Note{}, ErrNoteNotFound
}

// NoteUpdate carries the fields the explicit note-update operation may
// touch. Last write wins; the ingestion pipeline never uses this path.
type NoteUpdate struct {
	Transcription *string
	Summary       *string
}

func (s *Store) UpdateNote(projectID, noteID string, upd NoteUpdate) (domain.Note, error) {
	entry, ok := s.entry(projectID)
	if !ok {
		return domain.Note{}, ErrProjectNotFound
	}

	entry.mu.Lock()
	var updated *domain.Note
	for i := range entry.project.Notes {
		if entry.project.Notes[i].ID != noteID {
			continue
		}
		if upd.Transcription != nil {
			entry.project.Notes[i].Transcription = *upd.Transcription
		}
		if upd.Summary != nil {
			entry.project.Notes[i].Summary = *upd.Summary
		}
		entry.project.LastActivity = time.Now().UTC()
		note := entry.project.Notes[i]
		updated = &note
		break
	}
	entry.mu.Unlock()

	if updated == nil {
		return domain.Note{}, ErrNoteNotFound
	}
	if err := s.persist(); err != nil {
		return domain.Note{}, err
	}
	return *updated, nil
}

func (s *Store) RemoveNote(projectID, noteID string) (domain.Project, error) {
	entry, ok := s.entry(projectID)
	if !ok {
		return domain.Project{}, ErrProjectNotFound
	}

	entry.mu.Lock()
	found := false
	kept := make([]domain.Note, 0, len(entry.project.Notes))
	for _, note := range entry.project.Notes {
		if note.ID == noteID {
			found = true
			continue
		}
		kept = append(kept, note)
	}
	if found {
		entry.project.Notes = kept
		entry.project.LastActivity = time.Now().UTC()
	}
	updated := copyProject(entry.project)
	entry.mu.Unlock()

	if !found {
		return domain.Project{}, ErrNoteNotFound
	}
	if err := s.persist(); err != nil {
		return domain.Project{}, err
	}
	return updated, nil
}

// Stats recomputes project statistics from scratch on every call.
func (s *Store) Stats(projectID string) (domain.Stats, error) {
	project, err := s.Get(projectID)
	if err != nil {
		return domain.Stats{}, err
	}
	return computeStats(project.Notes), nil
}

// GlobalStats aggregates every project and builds the recent-activity feed:
// all notes tagged with their project name, newest first, capped at 10.
func (s *Store) GlobalStats() domain.GlobalStats {
	projects := s.List()

	global := domain.GlobalStats{
		TotalProjects:  len(projects),
		RecentActivity: []domain.ActivityEntry{},
	}

	for _, project := range projects {
		stats := computeStats(project.Notes)
		global.Totals.TotalNotes += stats.TotalNotes
		global.Totals.AudioNotes += stats.AudioNotes
		global.Totals.ImageNotes += stats.ImageNotes
		global.Totals.TranscribedNotes += stats.TranscribedNotes
		global.Totals.TotalWords += stats.TotalWords
		global.Totals.TotalDuration += stats.TotalDuration

		for _, note := range project.Notes {
			global.RecentActivity = append(global.RecentActivity, domain.ActivityEntry{
				ProjectID:   project.ID,
				ProjectName: project.Name,
				Note:        note,
			})
		}
	}

	sort.SliceStable(global.RecentActivity, func(i, j int) bool {
		return global.RecentActivity[i].Note.Timestamp > global.RecentActivity[j].Note.Timestamp
	})
	if len(global.RecentActivity) > recentActivityLimit {
		global.RecentActivity = global.RecentActivity[:recentActivityLimit]
	}

	return global
}

func (s *Store) entry(id string) (*projectEntry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	return entry, ok
}

// persist snapshots all projects and rewrites meta.json atomically. It runs
// outside any project lock; concurrent mutators serialize on saveMu so the
// last snapshot written contains every committed mutation. A failed write
// surfaces to the caller but does not roll back the in-memory commit; the
// committed state stays visible and is carried by the next snapshot.
func (s *Store) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	projects := s.List()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "meta-*.json")
	if err != nil {
		return fmt.Errorf("create temp meta: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(projects); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode meta: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp meta: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace meta file: %w", err)
	}

	return nil
}

func computeStats(notes []domain.Note) domain.Stats {
	stats := domain.Stats{TotalNotes: len(notes)}
	for _, note := range notes {
		if note.AudioPath != "" {
			stats.AudioNotes++
		}
		if len(note.ImagePaths) > 0 {
			stats.ImageNotes++
		}
		if note.Transcription != "" {
			stats.TranscribedNotes++
		}
		stats.TotalWords += len(strings.Fields(note.Transcription))
		if note.Duration != nil {
			stats.TotalDuration += *note.Duration
		}
	}
	return stats
}

func copyProject(p domain.Project) domain.Project {
	out := p
	out.Notes = make([]domain.Note, len(p.Notes))
	copy(out.Notes, p.Notes)
	return out
}
