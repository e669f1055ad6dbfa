package httpadapter

import (
	"encoding/json"
	"time"

	"scour/internal/domain"
	"scour/internal/services/scour"
)

type scourSourcesRequest struct {
	JobID           string   `json:"jobId,omitempty"`
	SourceIDs       []string `json:"sourceIds,omitempty"`
	MaxSources      int      `json:"maxSources,omitempty"`
	CallBudgetMs    int      `json:"callBudgetMs,omitempty"`
	SourceTimeoutMs int      `json:"sourceTimeoutMs,omitempty"`
	BatchSize       int      `json:"batchSize,omitempty"`
	DaysBack        int      `json:"daysBack,omitempty"`
}

func (r scourSourcesRequest) options() scour.AdvanceOptions {
	return scour.AdvanceOptions{
		TimeBudget:    time.Duration(r.CallBudgetMs) * time.Millisecond,
		SourceTimeout: time.Duration(r.SourceTimeoutMs) * time.Millisecond,
		BatchSize:     r.BatchSize,
		DaysBack:      r.DaysBack,
	}.Clamp()
}

type scourSourcesResponse struct {
	JobID                string                `json:"jobId"`
	Status               domain.JobStatus      `json:"status"`
	Total                int                   `json:"total"`
	NextIndex            int                   `json:"nextIndex"`
	Processed            int                   `json:"processed"`
	Created              int                   `json:"created"`
	DuplicatesSkipped    int                   `json:"duplicatesSkipped"`
	LowConfidenceSkipped int                   `json:"lowConfidenceSkipped"`
	ErrorCount           int                   `json:"errorCount"`
	ProcessedThisCall    int                   `json:"processedThisCall"`
	CreatedThisCall      int                   `json:"createdThisCall"`
	ErrorsThisCall       []domain.JobError     `json:"errorsThisCall"`
	RejectionsThisCall   []domain.JobRejection `json:"rejectionsThisCall"`
	Done                 bool                  `json:"done"`
	Error                string                `json:"error,omitempty"`
}

func progressResponse(p scour.Progress) scourSourcesResponse {
	j := p.Job
	return scourSourcesResponse{
		JobID:                j.ID,
		Status:               j.Status,
		Total:                j.Total(),
		NextIndex:            j.NextIndex,
		Processed:            j.Processed,
		Created:              j.Created,
		DuplicatesSkipped:    j.DuplicatesSkipped,
		LowConfidenceSkipped: j.LowConfidenceSkipped,
		ErrorCount:           len(j.Errors),
		ProcessedThisCall:    p.ProcessedThisCall,
		CreatedThisCall:      p.CreatedThisCall,
		ErrorsThisCall:       nonNilSlice(p.ErrorsThisCall),
		RejectionsThisCall:   nonNilSlice(p.RejectionsThisCall),
		Done:                 p.Done(),
	}
}

// jobView is a persisted job plus derived counts.
type jobView struct {
	domain.ScourJob
	Total      int `json:"total"`
	ErrorCount int `json:"errorCount"`
}

type statusResponse struct {
	Job jobView `json:"job"`
}

type runSourceRequest struct {
	TimeoutMs int `json:"timeoutMs,omitempty"`
	DaysBack  int `json:"daysBack,omitempty"`
}

// sourceRunResult reports one synchronous run as counters plus the reason
// for anything that was not created.
type sourceRunResult struct {
	Created        int      `json:"created"`
	Dup            int      `json:"dup"`
	DupGroupedInto string   `json:"dupGroupedInto,omitempty"`
	Low            int      `json:"low"`
	Error          string   `json:"error,omitempty"`
	Reject         string   `json:"reject,omitempty"`
	IncidentID     string   `json:"incidentId,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	QueryUsed      string   `json:"queryUsed,omitempty"`
}

type runSourceResponse struct {
	Result sourceRunResult `json:"result"`
}

type statsResponse struct {
	Stats domain.SourceHealthState `json:"stats"`
}

type processAlertResponse struct {
	Matched bool   `json:"matched"`
	TrendID string `json:"trendId,omitempty"`
}

type createTrendsResponse struct {
	Created  int      `json:"created"`
	TrendIDs []string `json:"trendIds"`
}

type statusChangeRequest struct {
	Status string `json:"status"`
}

type incidentView struct {
	ID           string          `json:"id"`
	SourceID     string          `json:"sourceId"`
	Title        string          `json:"title"`
	Country      string          `json:"country"`
	Location     string          `json:"location,omitempty"`
	Summary      string          `json:"summary"`
	Advice       []string        `json:"advice,omitempty"`
	Sources      []string        `json:"sources"`
	Severity     domain.Severity `json:"severity"`
	EventType    string          `json:"eventType,omitempty"`
	GeoScope     string          `json:"geoScope,omitempty"`
	Lat          *float64        `json:"lat,omitempty"`
	Lng          *float64        `json:"lng,omitempty"`
	RadiusKm     *float64        `json:"radiusKm,omitempty"`
	GeoJSON      json.RawMessage `json:"geoJSON,omitempty"`
	EventStartAt time.Time       `json:"eventStartDate"`
	EventEndAt   time.Time       `json:"eventEndDate"`
	Status       string          `json:"status"`
	Published    bool            `json:"published"`
	TrendID      *string         `json:"trendId,omitempty"`
	AIConfidence float64         `json:"aiConfidence"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func toIncidentView(inc domain.Incident) incidentView {
	return incidentView{
		ID:           inc.ID,
		SourceID:     inc.SourceID,
		Title:        inc.Title,
		Country:      inc.Country,
		Location:     inc.Location,
		Summary:      inc.Summary,
		Advice:       inc.Advice,
		Sources:      nonNilSlice(inc.Sources),
		Severity:     inc.Severity,
		EventType:    inc.EventType,
		GeoScope:     inc.GeoScope,
		Lat:          inc.Lat,
		Lng:          inc.Lng,
		RadiusKm:     inc.RadiusKm,
		GeoJSON:      inc.GeoJSON,
		EventStartAt: inc.EventStartAt,
		EventEndAt:   inc.EventEndAt,
		Status:       string(inc.Status),
		Published:    inc.Published,
		TrendID:      inc.TrendID,
		AIConfidence: inc.AIConfidence,
		CreatedAt:    inc.CreatedAt,
	}
}

type importResponse struct {
	Imported  int      `json:"imported"`
	SourceIDs []string `json:"sourceIds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
