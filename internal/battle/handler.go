// Package battle owns live battle sessions: per-side choice handling,
// redacted event routing, and the session actor that serializes all of
// it against the engine stream.
package battle

import (
	"time"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/ai"
	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// ChoiceHandler adapts one side, human or computer-controlled, to the
// session. Implementations are mutated only from the session loop.
type ChoiceHandler interface {
	// HandleRequest takes ownership of a new decision request. A newer
	// request supersedes any outstanding one.
	HandleRequest(req *protocol.Request)
	// ReceiveChoice validates raw against the outstanding request and
	// submits it. False leaves the outstanding request in place.
	ReceiveChoice(raw string) bool
	// Outstanding returns the unanswered request, if any.
	Outstanding() *protocol.Request
	// Stop detaches timers. Safe to call repeatedly.
	Stop()
}

// HumanHandler buffers the outstanding request for a connected player.
// During team preview it arms a timer that answers "default" if the
// player never does.
type HumanHandler struct {
	side           protocol.Side
	previewTimeout time.Duration
	submit         func(choice string)
	expired        func()
	log            *zap.Logger

	pending *protocol.Request
	timer   *time.Timer
}

// NewHumanHandler wires a handler for side. submit runs inside the
// session loop; expired is called from the timer goroutine and must
// only post back onto the session's serialized path.
func NewHumanHandler(side protocol.Side, previewTimeout time.Duration, submit func(string), expired func(), log *zap.Logger) *HumanHandler {
	return &HumanHandler{
		side:           side,
		previewTimeout: previewTimeout,
		submit:         submit,
		expired:        expired,
		log:            log,
	}
}

func (h *HumanHandler) HandleRequest(req *protocol.Request) {
	h.stopTimer()
	if req.Wait {
		h.pending = nil
		return
	}
	h.pending = req
	if req.TeamPreview && h.previewTimeout > 0 {
		h.timer = time.AfterFunc(h.previewTimeout, h.expired)
	}
}

func (h *HumanHandler) ReceiveChoice(raw string) bool {
	if h.pending == nil {
		return false
	}
	if !protocol.ValidChoice(h.pending, raw) {
		h.log.Debug("rejected choice",
			zap.String("side", string(h.side)),
			zap.String("choice", raw))
		return false
	}
	h.stopTimer()
	h.pending = nil
	h.submit(raw)
	return true
}

// ExpirePreview answers the team-preview request with "default". The
// session loop calls it when the armed timer fires; if a valid choice
// arrived first the request is gone and this is a no-op.
func (h *HumanHandler) ExpirePreview() {
	if h.pending == nil || !h.pending.TeamPreview {
		return
	}
	h.log.Info("team preview timed out, choosing default", zap.String("side", string(h.side)))
	h.pending = nil
	h.submit("default")
}

func (h *HumanHandler) Outstanding() *protocol.Request { return h.pending }

func (h *HumanHandler) Stop() { h.stopTimer() }

func (h *HumanHandler) stopTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// AIHandler computes a choice for every request through its decision
// tier. It holds no waiting state for callers: external choices are
// always rejected. The tier runs off the session loop; its result comes
// back through the session inbox and is applied only if the request it
// answered is still current.
type AIHandler struct {
	side protocol.Side
	// launch starts one tier computation off-loop for req.
	launch func(req *protocol.Request)

	current   *protocol.Request
	computing bool
}

func NewAIHandler(side protocol.Side, launch func(*protocol.Request)) *AIHandler {
	return &AIHandler{side: side, launch: launch}
}

func (h *AIHandler) HandleRequest(req *protocol.Request) {
	if req.Wait {
		h.current = nil
		return
	}
	h.current = req
	// Never two computations in flight for one slot: a running one
	// will observe the superseding request when it reports back.
	if !h.computing {
		h.computing = true
		h.launch(req)
	}
}

// Decided consumes a finished computation. It reports whether the
// choice answers the still-current request; a superseded request
// triggers a fresh computation instead.
func (h *AIHandler) Decided(rqid int) bool {
	h.computing = false
	if h.current == nil {
		return false
	}
	if h.current.RQID != rqid {
		h.computing = true
		h.launch(h.current)
		return false
	}
	h.current = nil
	return true
}

func (h *AIHandler) ReceiveChoice(string) bool { return false }

func (h *AIHandler) Outstanding() *protocol.Request { return nil }

func (h *AIHandler) Stop() {}

// AIProfile fixes a computer-controlled side's difficulty for the whole
// session.
type AIProfile struct {
	Difficulty int
	Tier       ai.Tier
}
