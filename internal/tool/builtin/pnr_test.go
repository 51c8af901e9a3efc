package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePNR = `PNR: ABC123
DL 123 J 01JUN JFKLHR HK1 1930 0725
BA 456 Y 05JUN LHRCDG HK1 0900 1115`

func TestParsePNR(t *testing.T) {
	locator, segments := ParsePNR(samplePNR)
	assert.Equal(t, "ABC123", locator)
	require.Len(t, segments, 2)

	assert.Equal(t, PNRSegment{
		Carrier: "DL", Flight: "123", Class: "J", Date: "01JUN",
		Origin: "JFK", Dest: "LHR", Status: "HK1", Departs: "1930", Arrives: "0725",
	}, segments[0])
	assert.Equal(t, "BA", segments[1].Carrier)
	assert.Equal(t, "CDG", segments[1].Dest)
}

func TestParsePNRMinimalLine(t *testing.T) {
	_, segments := ParsePNR("ua 89 k 12dec sfonrt")
	require.Len(t, segments, 1)
	assert.Equal(t, "UA", segments[0].Carrier)
	assert.Equal(t, "SFO", segments[0].Origin)
	assert.Equal(t, "NRT", segments[0].Dest)
	assert.Empty(t, segments[0].Status)
}

func TestPNRParseToolExecute(t *testing.T) {
	tool := NewPNRParseTool()
	args, _ := json.Marshal(map[string]string{"pnrText": samplePNR})

	res, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Summary, "Booking ABC123")
	assert.Contains(t, res.Summary, "2 segment(s)")
	assert.Contains(t, res.Summary, "DL123 01JUN JFK→LHR")
}

func TestPNRParseToolNoSegments(t *testing.T) {
	tool := NewPNRParseTool()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"pnrText":"hello world"}`))
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "no flight segments")
}
