package domain

import "time"

// Project is a named container of notes with activity metadata.
// LastActivity is refreshed on every mutation to the project or its notes
// and never precedes CreatedAt.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Notes        []Note    `json:"notes"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Note is one persisted capture: optional media handles plus fields derived
// from transcription. Transcription and Summary may be empty strings but are
// always present once a note is stored; Duration is absent (nil) rather than
// zero when the transcriber reported none.
type Note struct {
	ID            string   `json:"id"`
	Timestamp     string   `json:"timestamp"`
	AudioPath     string   `json:"audio,omitempty"`
	ImagePaths    []string `json:"images,omitempty"`
	Transcription string   `json:"transcription"`
	Summary       string   `json:"summary"`
	Language      string   `json:"language,omitempty"`
	Duration      *int     `json:"duration,omitempty"`
	Insights      []string `json:"insights"`
}

// Stats is recomputed on demand from a project's notes, never cached.
type Stats struct {
	TotalNotes       int `json:"totalNotes"`
	AudioNotes       int `json:"audioNotes"`
	ImageNotes       int `json:"imageNotes"`
	TranscribedNotes int `json:"transcribedNotes"`
	TotalWords       int `json:"totalWords"`
	TotalDuration    int `json:"totalDuration"`
}

// ActivityEntry is one item of the global recent-activity feed: a note
// tagged with the project it belongs to.
type ActivityEntry struct {
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	Note        Note   `json:"note"`
}

// GlobalStats aggregates stats across all projects.
type GlobalStats struct {
	TotalProjects  int             `json:"totalProjects"`
	Totals         Stats           `json:"totals"`
	RecentActivity []ActivityEntry `json:"recentActivity"`
}
