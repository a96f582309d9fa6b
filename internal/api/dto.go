package api

import (
	"time"

	"github.com/nupi-ai/comfort/internal/journal"
	"github.com/nupi-ai/comfort/internal/session"
)

// PageDTO is the data transfer object for connected pages.
type PageDTO struct {
	ID              string    `json:"id"`
	Origin          string    `json:"origin"`
	Site            string    `json:"site,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	Active          bool      `json:"active"`
	SessionID       string    `json:"session_id,omitempty"`
	Videos          int       `json:"videos"`
	ControlsEnabled bool      `json:"controls_enabled"`
}

// ToPageDTO converts a page status snapshot to its DTO representation.
func ToPageDTO(s session.Status) PageDTO {
	return PageDTO{
		ID:              s.PageID,
		Origin:          s.Origin,
		Site:            s.Site,
		ConnectedAt:     s.ConnectedAt,
		Active:          s.Active,
		SessionID:       s.SessionID,
		Videos:          s.Videos,
		ControlsEnabled: s.ControlsEnabled,
	}
}

// ToPageDTOList converts status snapshots to DTOs.
func ToPageDTOList(statuses []session.Status) []PageDTO {
	dtos := make([]PageDTO, len(statuses))
	for i, s := range statuses {
		dtos[i] = ToPageDTO(s)
	}
	return dtos
}

// SessionDTO is one journal entry.
type SessionDTO struct {
	ID         string     `json:"id"`
	PageID     string     `json:"page_id"`
	Site       string     `json:"site,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Videos     int        `json:"videos"`
	Reveals    int        `json:"reveals"`
}

// ToSessionDTO converts a journal entry; open entries are measured to now.
func ToSessionDTO(e journal.Entry, now time.Time) SessionDTO {
	return SessionDTO{
		ID:         e.ID,
		PageID:     e.PageID,
		Site:       e.Site,
		StartedAt:  e.StartedAt,
		EndedAt:    e.EndedAt,
		EndReason:  e.EndReason,
		DurationMS: e.Duration(now).Milliseconds(),
		Videos:     e.VideoCount,
		Reveals:    e.Reveals,
	}
}

// ToggleResponse is returned by the toggle endpoint.
type ToggleResponse struct {
	Success bool `json:"success"`
	Active  bool `json:"active"`
	NoVideo bool `json:"no_video,omitempty"`
}

// HealthDTO reports daemon liveness and bus counters.
type HealthDTO struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Pages        int    `json:"pages"`
	Clients      int    `json:"clients"`
	PublishTotal uint64 `json:"bus_published"`
	DroppedTotal uint64 `json:"bus_dropped"`
	SpilledTotal uint64 `json:"bus_spilled"`
	SpillBacklog int    `json:"bus_spill_backlog"`
}
