package battle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

func tagged(side protocol.Side, raw string) protocol.Event {
	ev := protocol.Parse(raw)
	ev.Side = side
	return ev
}

func TestProjectRedactsOpposingRequest(t *testing.T) {
	ev := tagged(protocol.SideP1, `|request|{"rqid":1}`)

	own := Project(ev, protocol.SideP1)
	assert.Equal(t, `|request|{"rqid":1}`, own.Line())

	other := Project(ev, protocol.SideP2)
	assert.Equal(t, protocol.VerbRequest, other.Verb)
	assert.Equal(t, "|request|", other.Line())
}

func TestProjectObscuresOpposingRoster(t *testing.T) {
	ev := protocol.Parse("|poke|p2|Garchomp, L78, M|item")

	own := Project(ev, protocol.SideP2)
	assert.Equal(t, "|poke|p2|Garchomp, L78, M|item", own.Line())

	other := Project(ev, protocol.SideP1)
	assert.Equal(t, "|poke|p2|???|???", other.Line())
}

func TestProjectRescalesOpposingHP(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		owner  protocol.Side
		hidden string
	}{
		{"damage", "|-damage|p2a: Garchomp|163/231", protocol.SideP2, "|-damage|p2a: Garchomp|71/100"},
		{"damage with status", "|-damage|p2a: Garchomp|163/231 brn", protocol.SideP2, "|-damage|p2a: Garchomp|71/100 brn"},
		{"heal", "|-heal|p1a: Blissey|600/714", protocol.SideP1, "|-heal|p1a: Blissey|85/100"},
		{"switch", "|switch|p2a: Garchomp|Garchomp, L78|231/231", protocol.SideP2, "|switch|p2a: Garchomp|Garchomp, L78|100/100"},
		{"fainted passes through", "|-damage|p2a: Garchomp|0 fnt", protocol.SideP2, "|-damage|p2a: Garchomp|0 fnt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := protocol.Parse(tc.raw)
			// The owner sees exact numbers.
			assert.Equal(t, tc.raw, Project(ev, tc.owner).Line())
			// The opponent sees percentages.
			assert.Equal(t, tc.hidden, Project(ev, tc.owner.Opponent()).Line())
		})
	}
}

func TestProjectNeverHidesOneHPBehindZero(t *testing.T) {
	ev := protocol.Parse("|-damage|p2a: Shedinja|1/714")
	got := Project(ev, protocol.SideP1)
	assert.Equal(t, "|-damage|p2a: Shedinja|1/100", got.Line())
}

func TestRouteParityAcrossSides(t *testing.T) {
	canonical := []protocol.Event{
		tagged("", "|start"),
		tagged("", "|poke|p1|Pikachu, L50|"),
		tagged("", "|poke|p2|Garchomp, L78|"),
		tagged("", "|teampreview"),
		tagged(protocol.SideP1, `|request|{"teamPreview":true,"rqid":1,"side":{"id":"p1"}}`),
		tagged(protocol.SideP2, `|request|{"teamPreview":true,"rqid":1,"side":{"id":"p2"}}`),
		tagged("", "|switch|p1a: Pikachu|Pikachu, L50|200/200"),
		tagged("", "|switch|p2a: Garchomp|Garchomp, L78|231/231"),
		tagged("", "|move|p1a: Pikachu|Thunderbolt|p2a: Garchomp"),
		tagged("", "|-damage|p2a: Garchomp|100/231"),
		tagged("", "|win|p1"),
	}

	delivered := map[protocol.Side][]protocol.Event{}
	requests := map[protocol.Side]int{}
	router := NewRouter(
		func(side protocol.Side, ev protocol.Event) {
			delivered[side] = append(delivered[side], ev)
		},
		func(side protocol.Side, req *protocol.Request) {
			requests[side]++
		},
		zap.NewNop(),
	)

	for _, ev := range canonical {
		router.Route(ev)
	}

	p1, p2 := delivered[protocol.SideP1], delivered[protocol.SideP2]
	require.Len(t, p1, len(canonical))
	require.Len(t, p2, len(canonical))

	// Index-for-index event-type parity across both projections.
	for i := range canonical {
		assert.Equal(t, canonical[i].Verb, p1[i].Verb, "p1 index %d", i)
		assert.Equal(t, p1[i].Verb, p2[i].Verb, "index %d", i)
	}

	// Requests were dispatched to their owning handlers only.
	assert.Equal(t, 1, requests[protocol.SideP1])
	assert.Equal(t, 1, requests[protocol.SideP2])

	// Hidden-information events differ only in content.
	assert.NotEqual(t, p1[9].Line(), p2[9].Line())
	assert.True(t, strings.HasPrefix(p2[9].Line(), "|-damage|p2a: Garchomp|"))
}

func TestRouteMalformedRequestDoesNotDispatch(t *testing.T) {
	dispatched := 0
	router := NewRouter(
		func(protocol.Side, protocol.Event) {},
		func(protocol.Side, *protocol.Request) { dispatched++ },
		zap.NewNop(),
	)

	router.Route(tagged(protocol.SideP1, "|request|not json"))
	assert.Zero(t, dispatched)
}
