package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotCounts(t *testing.T) {
	r := New()
	r.IncMessages()
	r.IncMessages()
	r.IncTurn("weather")
	r.IncTurn("weather")
	r.IncTurn("flights")
	r.IncLowConfidence("unknown")
	r.IncClarify("deep_research")
	r.IncFallback("redirect")
	r.IncGatedSkip("deepResearch")
	r.IncPlanRoute("weather")
	r.IncArgParseFail()
	r.IncAnswerWithCitations()

	s := r.Snapshot()
	assert.Equal(t, int64(2), s.MessagesTotal)
	assert.Equal(t, int64(2), s.ChatTurns["weather"])
	assert.Equal(t, int64(1), s.ChatTurns["flights"])
	assert.Equal(t, int64(1), s.RouterLowConf["unknown"])
	assert.Equal(t, int64(1), s.ClarifyRequests["deep_research"])
	assert.Equal(t, int64(1), s.Fallbacks["redirect"])
	assert.Equal(t, int64(1), s.GatedSkips["deepResearch"])
	assert.Equal(t, int64(1), s.PlanRoutes["weather"])
	assert.Equal(t, int64(1), s.ArgParseFailuresTotal)
	assert.Equal(t, int64(1), s.AnswersWithCitationsTotal)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.IncTurn("weather")

	s := r.Snapshot()
	s.ChatTurns["weather"] = 99

	assert.Equal(t, int64(1), r.Snapshot().ChatTurns["weather"])
}

func TestSnapshotEmptyRegistry(t *testing.T) {
	s := New().Snapshot()
	assert.NotNil(t, s.ChatTurns)
	assert.Zero(t, s.MessagesTotal)
}
