package battle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/ai"
	"github.com/avelius/pokebattle-backend/internal/engine"
	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// EngineFactory builds one engine handle per session. Production wraps
// engine.NewProcess; tests inject engine.Script.
type EngineFactory func(ctx context.Context, spec engine.StartSpec) (engine.Engine, error)

// Config parameterizes every session the registry creates.
type Config struct {
	NewEngine      EngineFactory
	PreviewTimeout time.Duration
	AIDeps         ai.Deps
}

// Registry owns all live sessions, indexed by session id and by room
// id. Handlers and transports never hold a session pointer; they go
// through the registry by id. The mutex guards only map mutation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byRoom   map[string]string

	cfg Config
	log *zap.Logger
}

func NewRegistry(cfg Config, log *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byRoom:   make(map[string]string),
		cfg:      cfg,
		log:      log,
	}
}

// StartAI creates a session between the caller (p1) and a computer
// tier of the given difficulty (p2).
func (r *Registry) StartAI(ctx context.Context, format string, team json.RawMessage, difficulty int, outbox chan []byte) (*Session, error) {
	spec := engine.StartSpec{
		Format: format,
		P1Name: "Player",
		P2Name: "CPU",
		P1Team: team,
	}
	return r.start(ctx, spec, "", SlotSpec{Name: "Player", Human: true, Outbox: outbox},
		SlotSpec{Name: "CPU", Difficulty: difficulty})
}

// StartPVP creates a session for a paired room. Both sides are human;
// observers receive lifecycle events (the room manager registers one to
// track the battling→ended transition).
func (r *Registry) StartPVP(ctx context.Context, roomID, format string, teamA, teamB json.RawMessage, p1Out, p2Out chan []byte, observers ...Observer) (*Session, error) {
	spec := engine.StartSpec{
		Format: format,
		P1Name: "p1",
		P2Name: "p2",
		P1Team: teamA,
		P2Team: teamB,
	}
	return r.start(ctx, spec, roomID,
		SlotSpec{Name: "p1", Human: true, Outbox: p1Out},
		SlotSpec{Name: "p2", Human: true, Outbox: p2Out},
		observers...)
}

func (r *Registry) start(ctx context.Context, spec engine.StartSpec, roomID string, p1, p2 SlotSpec, observers ...Observer) (*Session, error) {
	eng, err := r.cfg.NewEngine(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	id := uuid.NewString()
	observers = append(observers, r.evictionObserver())

	s, err := NewSession(SessionOptions{
		ID:             id,
		RoomID:         roomID,
		Format:         spec.Format,
		Engine:         eng,
		P1:             p1,
		P2:             p2,
		PreviewTimeout: r.cfg.PreviewTimeout,
		AIDeps:         r.cfg.AIDeps,
		Observers:      observers,
		Log:            r.log,
	})
	if err != nil {
		eng.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	if roomID != "" {
		r.byRoom[roomID] = id
	}
	r.mu.Unlock()

	r.log.Info("session started",
		zap.String("session", id),
		zap.String("format", spec.Format),
		zap.String("room", roomID))
	return s, nil
}

// evictionObserver drops the session from the indexes once it ends.
func (r *Registry) evictionObserver() Observer {
	return func(ev SessionEvent) error {
		if ev.Kind != SessionEnded {
			return nil
		}
		r.mu.Lock()
		delete(r.sessions, ev.SessionID)
		if ev.RoomID != "" {
			delete(r.byRoom, ev.RoomID)
		}
		r.mu.Unlock()
		return nil
	}
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ByRoom looks a session up by its room id.
func (r *Registry) ByRoom(roomID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRoom[roomID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Reattach rebinds a dropped connection to its session's existing
// decision state. False when no live session exists for the room.
func (r *Registry) Reattach(roomID string, side protocol.Side, outbox chan []byte) (*Session, bool) {
	s, ok := r.ByRoom(roomID)
	if !ok {
		return nil, false
	}
	if !s.AddConnection(side, outbox) {
		return nil, false
	}
	return s, true
}

// Shutdown cleans up every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Cleanup()
	}
}
