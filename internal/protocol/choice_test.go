package protocol

import "testing"

func TestValidChoice(t *testing.T) {
	preview := &Request{TeamPreview: true}
	active := &Request{Active: []ActiveOptions{{Moves: []MoveOption{{ID: "tackle"}}}}}

	cases := []struct {
		name   string
		req    *Request
		choice string
		want   bool
	}{
		{"preview default", preview, "default", true},
		{"preview team pick", preview, "team 3", true},
		{"preview team bounds low", preview, "team 1", true},
		{"preview team bounds high", preview, "team 6", true},
		{"preview rejects team 0", preview, "team 0", false},
		{"preview rejects team 7", preview, "team 7", false},
		{"preview rejects move", preview, "move 1", false},
		{"active move", active, "move 2", true},
		{"active move by name", active, "move thunderbolt", true},
		{"active switch", active, "switch 1", true},
		{"active default", active, "default", true},
		{"active rejects bare verb", active, "move", false},
		{"active rejects unknown verb", active, "attack", false},
		{"active rejects team pick", active, "team 3", false},
		{"nil request rejects everything", nil, "default", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidChoice(tc.req, tc.choice); got != tc.want {
				t.Fatalf("ValidChoice(%q): want %v, got %v", tc.choice, tc.want, got)
			}
		})
	}
}
