// Package natsbus publishes pipeline events on NATS core subjects.
package natsbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"scour/internal/domain"
	"scour/internal/ports"
)

const (
	SubjectIncidentCreated = "scour.incident.created"
	SubjectTrendCreated    = "scour.trend.created"
)

// IncidentEvent is the payload published when an incident is stored.
type IncidentEvent struct {
	ID        string          `json:"id"`
	SourceID  string          `json:"sourceId"`
	Title     string          `json:"title"`
	Country   string          `json:"country"`
	Location  string          `json:"location,omitempty"`
	Severity  domain.Severity `json:"severity"`
	EventType string          `json:"eventType,omitempty"`
	StartsAt  time.Time       `json:"eventStartDate"`
	EndsAt    time.Time       `json:"eventEndDate"`
	Sources   []string        `json:"sources"`
}

// TrendEvent is the payload published when a trend is created.
type TrendEvent struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Countries     []string        `json:"countries"`
	EventType     string          `json:"eventType,omitempty"`
	Severity      domain.Severity `json:"severity"`
	IncidentIDs   []string        `json:"incidentIds"`
	AutoGenerated bool            `json:"autoGenerated"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

type Publisher struct {
	nc conn
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Connect dials url with unlimited reconnects.
func Connect(url string) (*Publisher, *nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("scour"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, err
	}
	return &Publisher{nc: nc}, nc, nil
}

func (p *Publisher) PublishIncidentCreated(_ context.Context, inc domain.Incident) error {
	return p.publish(SubjectIncidentCreated, IncidentEvent{
		ID:        inc.ID,
		SourceID:  inc.SourceID,
		Title:     inc.Title,
		Country:   inc.Country,
		Location:  inc.Location,
		Severity:  inc.Severity,
		EventType: inc.EventType,
		StartsAt:  inc.EventStartAt,
		EndsAt:    inc.EventEndAt,
		Sources:   inc.Sources,
	})
}

func (p *Publisher) PublishTrendCreated(_ context.Context, tr domain.Trend) error {
	return p.publish(SubjectTrendCreated, TrendEvent{
		ID:            tr.ID,
		Title:         tr.Title,
		Countries:     tr.Countries,
		EventType:     tr.EventType,
		Severity:      tr.Severity,
		IncidentIDs:   tr.AlertIDs,
		AutoGenerated: tr.AutoGenerated,
	})
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, data)
}
