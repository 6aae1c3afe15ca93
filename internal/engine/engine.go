// Package engine wraps the external battle simulator. The simulator is
// an opaque child process speaking a line-oriented protocol: commands go
// in as ">side choice" lines, events come out in update/sideupdate
// blocks of pipe-delimited lines.
package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"go.uber.org/zap"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// Engine is one battle's handle on the simulator.
type Engine interface {
	// Events yields the canonical ordered event stream. The channel is
	// closed when the simulator exits or the engine is closed.
	Events() <-chan protocol.Event
	// Write sends one raw command line to the simulator.
	Write(cmd string) error
	// Close tears the handle down. Safe to call more than once.
	Close() error
}

// StartSpec describes the battle to simulate.
type StartSpec struct {
	Format string
	P1Name string
	P2Name string
	P1Team json.RawMessage
	P2Team json.RawMessage
}

// Process runs the simulator binary for a single battle.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan protocol.Event
	cancel context.CancelFunc
	log    *zap.Logger
}

// NewProcess spawns the simulator and writes the start commands. A
// spawn failure is fatal for this battle only and surfaces to the
// caller.
func NewProcess(ctx context.Context, command string, args []string, spec StartSpec, log *zap.Logger) (*Process, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening simulator stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening simulator stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting simulator %q: %w", command, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan protocol.Event, 64),
		cancel: cancel,
		log:    log,
	}
	go p.read(stdout)

	if err := p.start(spec); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) start(spec StartSpec) error {
	start, err := json.Marshal(map[string]string{"formatid": spec.Format})
	if err != nil {
		return fmt.Errorf("encoding start options: %w", err)
	}
	lines := []string{
		">start " + string(start),
		fmt.Sprintf(`>player p1 {"name":%q,"team":%s}`, spec.P1Name, teamJSON(spec.P1Team)),
		fmt.Sprintf(`>player p2 {"name":%q,"team":%s}`, spec.P2Name, teamJSON(spec.P2Team)),
	}
	for _, line := range lines {
		if err := p.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func teamJSON(team json.RawMessage) string {
	if len(team) == 0 {
		return "null"
	}
	return string(team)
}

// read turns the simulator's block output into tagged events. A block
// starts with "update" (omniscient) or "sideupdate" followed by a side
// id; its pipe-delimited lines belong to that scope until a blank line.
func (p *Process) read(stdout io.Reader) {
	defer close(p.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var side protocol.Side
	expectSide := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "update":
			side, expectSide = "", false
		case line == "sideupdate":
			expectSide = true
		case expectSide:
			side, _ = protocol.ParseSide(line)
			expectSide = false
		case line == "":
			side = ""
		default:
			ev := protocol.Parse(line)
			ev.Side = side
			p.events <- ev
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("simulator stream read failed", zap.Error(err))
	}
}

func (p *Process) Events() <-chan protocol.Event { return p.events }

func (p *Process) Write(cmd string) error {
	if _, err := io.WriteString(p.stdin, cmd+"\n"); err != nil {
		return fmt.Errorf("writing to simulator: %w", err)
	}
	return nil
}

func (p *Process) Close() error {
	p.stdin.Close()
	p.cancel()
	// Reap the child; the context cancel above kills it if still alive.
	_ = p.cmd.Wait()
	return nil
}
