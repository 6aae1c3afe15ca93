package protocol

import "regexp"

// Choice grammar. During team preview only "default" and a team order
// are legal; otherwise a choice names a move, a switch, or "default".
var (
	teamChoice   = regexp.MustCompile(`^(default|team [1-6])$`)
	activeChoice = regexp.MustCompile(`^(default|move .+|switch .+)$`)
)

// ValidChoice reports whether raw answers the given request. A choice
// is only meaningful relative to the request it answers; a nil request
// accepts nothing.
func ValidChoice(req *Request, raw string) bool {
	if req == nil {
		return false
	}
	if req.TeamPreview {
		return teamChoice.MatchString(raw)
	}
	return activeChoice.MatchString(raw)
}
