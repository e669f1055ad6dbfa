package domain

import (
	"encoding/json"
	"time"
)

// Core domain models shared by services and adapters. HTTP payload shapes live
// in the http adapter; keep these decoupled from wire concerns where helpful.

type SourceType string

const (
	SourceTypeWeb    SourceType = "web"
	SourceTypeSearch SourceType = "search"
	SourceTypeRSS    SourceType = "rss"
)

type Source struct {
	ID               string
	Name             string
	URL              string
	Country          string
	Topics           []string
	Type             SourceType
	Enabled          bool
	MinSeverityFloor Severity
}

// EvidenceItem is one search/scrape snippet. Never persisted.
type EvidenceItem struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	RecencyHint string `json:"recencyHint,omitempty"`
}

// IncidentDraft is the structured output of the draft generator.
type IncidentDraft struct {
	OK             bool            `json:"ok"`
	Confidence     float64         `json:"confidence"`
	Title          string          `json:"title"`
	Country        string          `json:"country"`
	Location       string          `json:"location,omitempty"`
	Summary        string          `json:"summary"`
	Advice         []string        `json:"advice,omitempty"`
	Sources        []string        `json:"sources"`
	Severity       Severity        `json:"severity,omitempty"`
	EventType      string          `json:"eventType,omitempty"`
	GeoScope       string          `json:"geoScope,omitempty"`
	Lat            *float64        `json:"lat,omitempty"`
	Lng            *float64        `json:"lng,omitempty"`
	RadiusKm       *float64        `json:"radiusKm,omitempty"`
	GeoJSON        json.RawMessage `json:"geoJSON,omitempty"`
	EventStartDate string          `json:"eventStartDate,omitempty"`
	EventEndDate   string          `json:"eventEndDate,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

type IncidentStatus string

const (
	IncidentDraftStatus IncidentStatus = "draft"
	IncidentApproved    IncidentStatus = "approved"
	IncidentDismissed   IncidentStatus = "dismissed"
)

// Terminal reports whether the status has been through human review.
func (s IncidentStatus) Terminal() bool {
	return s == IncidentApproved || s == IncidentDismissed
}

type Incident struct {
	ID           string
	SourceID     string
	Title        string
	Country      string
	Location     string
	Summary      string
	Advice       []string
	Sources      []string
	Severity     Severity
	EventType    string
	GeoScope     string
	Lat          *float64
	Lng          *float64
	RadiusKm     *float64
	GeoJSON      json.RawMessage
	EventStartAt time.Time
	EventEndAt   time.Time
	Status       IncidentStatus
	Published    bool
	TrendID      *string
	AIConfidence float64
	AIReason     string
	CreatedAt    time.Time
}

// HasGeo reports whether every geolocation field is populated.
func (i Incident) HasGeo() bool {
	return i.Lat != nil && i.Lng != nil && i.RadiusKm != nil && len(i.GeoJSON) > 0
}

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
)

type JobError struct {
	SourceID string `json:"sourceId"`
	Reason   string `json:"reason"`
}

type JobRejection struct {
	SourceID   string   `json:"sourceId"`
	Outcome    string   `json:"outcome"`
	Reason     string   `json:"reason"`
	Severity   Severity `json:"severity,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type ScourJob struct {
	ID                   string         `json:"id"`
	SourceIDs            []string       `json:"sourceIds"`
	NextIndex            int            `json:"nextIndex"`
	Processed            int            `json:"processed"`
	Created              int            `json:"created"`
	DuplicatesSkipped    int            `json:"duplicatesSkipped"`
	LowConfidenceSkipped int            `json:"lowConfidenceSkipped"`
	Errors               []JobError     `json:"errors"`
	Rejections           []JobRejection `json:"rejections"`
	Status               JobStatus      `json:"status"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Total is the number of sources the job covers.
func (j ScourJob) Total() int { return len(j.SourceIDs) }

// NextBatch returns up to n source ids starting at NextIndex.
func (j ScourJob) NextBatch(n int) []string {
	if n < 1 {
		n = 1
	}
	if j.NextIndex >= len(j.SourceIDs) {
		return nil
	}
	end := j.NextIndex + n
	if end > len(j.SourceIDs) {
		end = len(j.SourceIDs)
	}
	return j.SourceIDs[j.NextIndex:end]
}

type HealthEntry struct {
	At         time.Time `json:"at"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Severity   Severity  `json:"severity,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

type SourceHealthState struct {
	SourceID            string        `json:"sourceId"`
	History             []HealthEntry `json:"history"`
	ConsecutiveRejects  int           `json:"consecutiveRejects"`
	ConsecutiveNoCreate int           `json:"consecutiveNoCreate"`
	TotalCreated        int           `json:"totalCreated"`
	TotalRuns           int           `json:"totalRuns"`
	DisabledBySystem    bool          `json:"disabledBySystem"`
	DisabledReason      string        `json:"disabledReason,omitempty"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

type TrendStatus string

const (
	TrendOpen       TrendStatus = "open"
	TrendMonitoring TrendStatus = "monitoring"
	TrendClosed     TrendStatus = "closed"
)

type Trend struct {
	ID                 string
	Title              string
	Country            string
	Countries          []string
	EventType          string
	Severity           Severity
	Description        string
	PredictiveAnalysis string
	AlertIDs           []string
	IncidentCount      int
	Status             TrendStatus
	FirstSeen          time.Time
	LastSeen           time.Time
	AutoGenerated      bool
}
