package models

import "time"

type FileRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Phase string `json:"phase,omitempty"`
	Type  string `json:"type,omitempty"`
}

type Link struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Phase string `json:"phase,omitempty"`
}

// Decision is one entry of a collaboration's append-only decision log.
type Decision struct {
	Decision  string    `json:"decision"`
	Notes     string    `json:"notes,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Collaboration is the workspace created when an application is accepted.
type Collaboration struct {
	Meta
	ApplicationID string            `json:"applicationId"`
	CompanyID     string            `json:"companyId"`
	PartnerID     string            `json:"partnerId"`
	Framework     Framework         `json:"framework"`
	CurrentPhase  string            `json:"currentPhase,omitempty"`
	PhaseNotes    map[string]string `json:"phaseNotes,omitempty"`
	PhaseMetrics  map[string]string `json:"phaseMetrics,omitempty"`
	Files         []FileRef         `json:"files,omitempty"`
	Links         []Link            `json:"links,omitempty"`
	Decisions     []Decision        `json:"decisions,omitempty"`
}
