package natsbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/domain"
)

type captured struct {
	subjects []string
	payloads [][]byte
}

func (c *captured) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestPublishEvents(t *testing.T) {
	c := &captured{}
	p := &Publisher{nc: c}
	ctx := context.Background()

	require.NoError(t, p.PublishIncidentCreated(ctx, domain.Incident{ID: "i1", Title: "Flooding in Mombasa", Country: "Kenya", Severity: domain.SeverityCaution}))
	require.NoError(t, p.PublishTrendCreated(ctx, domain.Trend{ID: "t1", Title: "Coastal flooding in Kenya", AlertIDs: []string{"i1", "i2"}}))

	assert.Equal(t, []string{SubjectIncidentCreated, SubjectTrendCreated}, c.subjects)

	var inc IncidentEvent
	require.NoError(t, json.Unmarshal(c.payloads[0], &inc))
	assert.Equal(t, "i1", inc.ID)
	assert.Equal(t, domain.SeverityCaution, inc.Severity)

	var tr TrendEvent
	require.NoError(t, json.Unmarshal(c.payloads[1], &tr))
	assert.Equal(t, []string{"i1", "i2"}, tr.IncidentIDs)
}
