package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/battle"
	"github.com/avelius/pokebattle-backend/internal/engine"
	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// scriptFactory hands out in-memory engines and remembers them so tests
// can drive the battle by hand.
type scriptFactory struct {
	mu      sync.Mutex
	scripts []*engine.Script
}

func (f *scriptFactory) new(_ context.Context, _ engine.StartSpec) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := engine.NewScript()
	f.scripts = append(f.scripts, s)
	return s, nil
}

func (f *scriptFactory) latest() *engine.Script {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scripts) == 0 {
		return nil
	}
	return f.scripts[len(f.scripts)-1]
}

func newTestManager(t *testing.T, cfg ManagerConfig) (*Manager, *battle.Registry, *scriptFactory) {
	t.Helper()
	log := zap.NewNop()
	factory := &scriptFactory{}
	registry := battle.NewRegistry(battle.Config{NewEngine: factory.new}, log)
	m := NewManager(context.Background(), registry, cfg, log)
	t.Cleanup(func() {
		m.Shutdown()
		registry.Shutdown()
	})
	return m, registry, factory
}

func quietConfig() ManagerConfig {
	// Long enough that no timer fires during a test unless it opts in.
	return ManagerConfig{
		UnclaimedTimeout: time.Minute,
		WaitingTTL:       time.Minute,
		SweepInterval:    time.Minute,
	}
}

func drainUntil(t *testing.T, out chan []byte, substr string) []byte {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case payload, ok := <-out:
			if !ok {
				t.Fatalf("outbox closed before %q arrived", substr)
			}
			if strings.Contains(string(payload), substr) {
				return payload
			}
		case <-deadline:
			t.Fatalf("no %q message within deadline", substr)
		}
	}
}

func TestCreateRoomIssuesCode(t *testing.T) {
	m, _, _ := newTestManager(t, quietConfig())

	id, err := m.CreateRoom()
	require.NoError(t, err)
	assert.Regexp(t, codePattern, id)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestCreateRoomSurfacesCodeFailure(t *testing.T) {
	m, _, _ := newTestManager(t, quietConfig())

	orig := codeSource
	codeSource = failingReader{}
	defer func() { codeSource = orig }()

	_, err := m.CreateRoom()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generating room code")
	assert.Contains(t, err.Error(), "entropy exhausted")
}

func TestJoinAssignsSidesInOrder(t *testing.T) {
	m, _, _ := newTestManager(t, quietConfig())
	id, err := m.CreateRoom()
	require.NoError(t, err)

	first := m.Join(id, make(chan []byte, 4))
	require.NotNil(t, first)
	assert.Equal(t, protocol.SideP1, first.Side)

	second := m.Join(id, make(chan []byte, 4))
	require.NotNil(t, second)
	assert.Equal(t, protocol.SideP2, second.Side)

	assert.Nil(t, m.Join(id, make(chan []byte, 4)), "a full room refuses a third join")
}

func TestJoinUnknownRoom(t *testing.T) {
	m, _, _ := newTestManager(t, quietConfig())
	assert.Nil(t, m.Join("NOSUCH", make(chan []byte, 1)))
}

func TestJoinBroadcastsToRoom(t *testing.T) {
	m, _, _ := newTestManager(t, quietConfig())
	id, err := m.CreateRoom()
	require.NoError(t, err)

	p1Out := make(chan []byte, 4)
	require.NotNil(t, m.Join(id, p1Out))
	drainUntil(t, p1Out, "room-joined")

	require.NotNil(t, m.Join(id, make(chan []byte, 4)))
	// The first participant hears about the second join too.
	drainUntil(t, p1Out, "p2")
}

func TestCompletePairingStartsBattle(t *testing.T) {
	m, registry, factory := newTestManager(t, quietConfig())
	id, err := m.CreateRoom()
	require.NoError(t, err)

	p1Out := make(chan []byte, 16)
	p2Out := make(chan []byte, 16)
	require.NotNil(t, m.Join(id, p1Out))
	require.NotNil(t, m.Join(id, p2Out))

	team := json.RawMessage(`[{"species":"Pikachu"}]`)
	require.True(t, m.SetTeam(id, protocol.SideP1, "gen6ou", team))
	_, ok := registry.ByRoom(id)
	assert.False(t, ok, "one team is not a pairing")

	require.True(t, m.SetTeam(id, protocol.SideP2, "gen6ou", team))

	s, ok := registry.ByRoom(id)
	require.True(t, ok, "both teams in: the session must exist")
	assert.Equal(t, id, s.RoomID())
	require.NotNil(t, factory.latest())

	// The room has left waiting: late joins are refused.
	assert.Nil(t, m.Join(id, make(chan []byte, 1)))
}

func TestSessionEndReleasesRoom(t *testing.T) {
	m, registry, factory := newTestManager(t, quietConfig())
	id, err := m.CreateRoom()
	require.NoError(t, err)

	require.NotNil(t, m.Join(id, make(chan []byte, 16)))
	require.NotNil(t, m.Join(id, make(chan []byte, 16)))
	team := json.RawMessage(`[]`)
	require.True(t, m.SetTeam(id, protocol.SideP1, "gen6ou", team))
	require.True(t, m.SetTeam(id, protocol.SideP2, "gen6ou", team))

	script := factory.latest()
	require.NotNil(t, script)
	script.Emit("", "|win|p1")

	require.Eventually(t, func() bool {
		_, ok := registry.ByRoom(id)
		return !ok
	}, time.Second, 5*time.Millisecond)

	// The room id is free again once the session is gone.
	require.Eventually(t, func() bool {
		return m.Join(id, make(chan []byte, 1)) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestUnclaimedRoomExpires(t *testing.T) {
	cfg := quietConfig()
	cfg.UnclaimedTimeout = 20 * time.Millisecond
	m, _, _ := newTestManager(t, cfg)

	id, err := m.CreateRoom()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.Join(id, make(chan []byte, 1)) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestUnclaimedTimerStillRunsWithOneSide(t *testing.T) {
	cfg := quietConfig()
	cfg.UnclaimedTimeout = 20 * time.Millisecond
	m, _, _ := newTestManager(t, cfg)

	id, err := m.CreateRoom()
	require.NoError(t, err)
	out := make(chan []byte, 8)
	require.NotNil(t, m.Join(id, out))

	// A single participant is not a pairing; the room is still reaped.
	drainUntil(t, out, "room-closed")
}

func TestSecondJoinDisarmsUnclaimedTimer(t *testing.T) {
	cfg := quietConfig()
	cfg.UnclaimedTimeout = 30 * time.Millisecond
	m, _, _ := newTestManager(t, cfg)

	id, err := m.CreateRoom()
	require.NoError(t, err)
	require.NotNil(t, m.Join(id, make(chan []byte, 4)))
	require.NotNil(t, m.Join(id, make(chan []byte, 4)))

	time.Sleep(80 * time.Millisecond)
	assert.True(t, m.SetTeam(id, protocol.SideP1, "", json.RawMessage(`[]`)),
		"a claimed room survives the unclaimed timeout")
}

func TestSweepEvictsStaleWaitingRooms(t *testing.T) {
	cfg := quietConfig()
	cfg.WaitingTTL = 20 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	m, _, _ := newTestManager(t, cfg)

	id, err := m.CreateRoom()
	require.NoError(t, err)
	out := make(chan []byte, 8)
	require.NotNil(t, m.Join(id, out))

	drainUntil(t, out, "room-closed")
	require.Eventually(t, func() bool {
		return m.Join(id, make(chan []byte, 1)) == nil
	}, time.Second, 5*time.Millisecond)
}
