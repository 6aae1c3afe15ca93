package battle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// recordingSink captures submitted choices.
type recordingSink struct{ choices []string }

func (r *recordingSink) submit(choice string) { r.choices = append(r.choices, choice) }

func previewRequest(rqid int) *protocol.Request {
	return &protocol.Request{TeamPreview: true, RQID: rqid}
}

func activeRequest(rqid int) *protocol.Request {
	return &protocol.Request{
		RQID:   rqid,
		Active: []protocol.ActiveOptions{{Moves: []protocol.MoveOption{{ID: "tackle"}}}},
	}
}

func TestHumanHandlerAcceptsValidChoice(t *testing.T) {
	sink := &recordingSink{}
	h := NewHumanHandler(protocol.SideP1, 0, sink.submit, func() {}, zap.NewNop())

	h.HandleRequest(activeRequest(1))
	require.NotNil(t, h.Outstanding())

	assert.True(t, h.ReceiveChoice("move 1"))
	assert.Nil(t, h.Outstanding())
	assert.Equal(t, []string{"move 1"}, sink.choices)
}

func TestHumanHandlerRejectsAndRetains(t *testing.T) {
	sink := &recordingSink{}
	h := NewHumanHandler(protocol.SideP1, 0, sink.submit, func() {}, zap.NewNop())

	// No outstanding request: everything is rejected.
	assert.False(t, h.ReceiveChoice("move 1"))

	h.HandleRequest(activeRequest(1))
	// Grammar mismatch: rejected, request retained for a retry.
	assert.False(t, h.ReceiveChoice("attack"))
	require.NotNil(t, h.Outstanding())

	assert.True(t, h.ReceiveChoice("switch 2"))
	assert.Equal(t, []string{"switch 2"}, sink.choices)
}

func TestHumanHandlerNewRequestSupersedesOld(t *testing.T) {
	sink := &recordingSink{}
	h := NewHumanHandler(protocol.SideP1, 0, sink.submit, func() {}, zap.NewNop())

	h.HandleRequest(activeRequest(1))
	h.HandleRequest(activeRequest(2))

	require.NotNil(t, h.Outstanding())
	assert.Equal(t, 2, h.Outstanding().RQID)
}

func TestHumanHandlerWaitClearsOutstanding(t *testing.T) {
	h := NewHumanHandler(protocol.SideP1, 0, func(string) {}, func() {}, zap.NewNop())

	h.HandleRequest(activeRequest(1))
	h.HandleRequest(&protocol.Request{Wait: true})
	assert.Nil(t, h.Outstanding())
}

func TestHumanHandlerPreviewTimeout(t *testing.T) {
	t.Run("fires once and synthesizes default", func(t *testing.T) {
		sink := &recordingSink{}
		fired := make(chan struct{}, 4)
		h := NewHumanHandler(protocol.SideP1, 10*time.Millisecond, sink.submit,
			func() { fired <- struct{}{} }, zap.NewNop())

		h.HandleRequest(previewRequest(1))
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer never fired")
		}

		// The session loop reacts to the expiry signal.
		h.ExpirePreview()
		assert.Equal(t, []string{"default"}, sink.choices)

		// A second expiry for the same snapshot is a no-op.
		h.ExpirePreview()
		assert.Equal(t, []string{"default"}, sink.choices)

		// A choice after the timeout has no outstanding request to answer.
		assert.False(t, h.ReceiveChoice("team 2"))
	})

	t.Run("suppressed by a valid choice", func(t *testing.T) {
		sink := &recordingSink{}
		fired := make(chan struct{}, 1)
		h := NewHumanHandler(protocol.SideP1, 20*time.Millisecond, sink.submit,
			func() { fired <- struct{}{} }, zap.NewNop())

		h.HandleRequest(previewRequest(1))
		require.True(t, h.ReceiveChoice("team 1"))

		select {
		case <-fired:
			t.Fatal("timer fired after a valid choice was accepted")
		case <-time.After(60 * time.Millisecond):
		}
		assert.Equal(t, []string{"team 1"}, sink.choices)
	})

	t.Run("no timer for ordinary requests", func(t *testing.T) {
		fired := make(chan struct{}, 1)
		h := NewHumanHandler(protocol.SideP1, 10*time.Millisecond, func(string) {},
			func() { fired <- struct{}{} }, zap.NewNop())

		h.HandleRequest(activeRequest(1))
		select {
		case <-fired:
			t.Fatal("timer armed for a non-preview request")
		case <-time.After(40 * time.Millisecond):
		}
	})
}

func TestAIHandlerComputesImmediately(t *testing.T) {
	var launched []*protocol.Request
	h := NewAIHandler(protocol.SideP2, func(req *protocol.Request) {
		launched = append(launched, req)
	})

	req := activeRequest(7)
	h.HandleRequest(req)
	require.Len(t, launched, 1)
	assert.Same(t, req, launched[0])

	// AI holds no waiting state for callers.
	assert.Nil(t, h.Outstanding())
	assert.False(t, h.ReceiveChoice("move 1"))

	// Result for the current request applies.
	assert.True(t, h.Decided(7))
}

func TestAIHandlerSupersededRequestRecomputes(t *testing.T) {
	var launched []*protocol.Request
	h := NewAIHandler(protocol.SideP2, func(req *protocol.Request) {
		launched = append(launched, req)
	})

	h.HandleRequest(activeRequest(1))
	// A newer request lands while the first computation is in flight:
	// no second launch yet.
	h.HandleRequest(activeRequest(2))
	require.Len(t, launched, 1)

	// The stale result is discarded and the current request recomputed.
	assert.False(t, h.Decided(1))
	require.Len(t, launched, 2)
	assert.Equal(t, 2, launched[1].RQID)

	assert.True(t, h.Decided(2))
}
