package monitor

import (
	"testing"

	"github.com/lgfreitas/eproc-monitor/internal/database"
	"github.com/lgfreitas/eproc-monitor/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDBCaseCarriesInferredSide(t *testing.T) {
	pc := scraper.ParsedCase{
		Docket:         "5001234-56.2024.8.21.0001",
		PlaintiffName:  "MARIA DA SILVA",
		PlaintiffTaxID: "123.456.789-01",
		DefendantName:  "BANCO ALFA S.A.",
		DefendantTaxID: "12.345.678/0001-90",
	}

	c := toDBCase(pc)
	assert.Empty(t, c.RepresentedSide)
	assert.Empty(t, c.RepresentedName)

	pc.RepresentedSide = database.SideDefendant
	c = toDBCase(pc)
	assert.Equal(t, database.SideDefendant, c.RepresentedSide)
	assert.Equal(t, "BANCO ALFA S.A.", c.RepresentedName)
	assert.Equal(t, "12.345.678/0001-90", c.RepresentedTax)
}

func TestPassDrained(t *testing.T) {
	tests := []struct {
		name       string
		candidates int
		batch      int
		failures   int
		want       bool
	}{
		{"empty backlog", 0, 15, 0, true},
		{"backlog within batch", 10, 15, 0, true},
		{"backlog exceeds batch", 20, 15, 0, false},
		{"all candidates failed", 3, 15, 3, false},
		{"one failure keeps the backlog open", 10, 15, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passDrained(tt.candidates, tt.batch, tt.failures))
		})
	}
}

func TestToDBEvents(t *testing.T) {
	seq := 95
	ref := 88
	events := toDBEvents("5001234-56.2024.8.21.0001", []scraper.ParsedEvent{
		{
			Seq:             &seq,
			Description:     "Expedida/certificada a intimação eletrônica",
			IsDeadlineEvent: true,
			RefEvent:        &ref,
			Attachments:     []scraper.Attachment{{Name: "PET1.pdf", URL: "x"}},
		},
	})

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "5001234-56.2024.8.21.0001", ev.Docket)
	require.NotNil(t, ev.Seq)
	assert.Equal(t, 95, *ev.Seq)
	assert.True(t, ev.IsDeadlineEvent)
	require.NotNil(t, ev.RefEvent)
	assert.Equal(t, 88, *ev.RefEvent)
	assert.Contains(t, ev.AttachmentsJSON, "PET1.pdf")
}
