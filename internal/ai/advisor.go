package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// Consultation is what the augmented tier sends to the knowledge
// service: the outstanding request plus what is known of the opponent.
type Consultation struct {
	Format   string            `json:"format,omitempty"`
	Request  *protocol.Request `json:"request"`
	Opponent CombatantSummary  `json:"opponent"`
}

// Advisor is the pluggable knowledge-augmented move oracle consulted by
// the tier-5 strategy. Implementations must respect the context
// deadline; callers treat any error as "advisor unavailable".
type Advisor interface {
	Suggest(ctx context.Context, c Consultation) (string, error)
}

// HTTPAdvisor asks an external knowledge service over HTTP.
type HTTPAdvisor struct {
	URL    string
	Client *http.Client
}

func NewHTTPAdvisor(url string) *HTTPAdvisor {
	return &HTTPAdvisor{URL: url, Client: http.DefaultClient}
}

func (a *HTTPAdvisor) Suggest(ctx context.Context, c Consultation) (string, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding consultation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying advisor: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	var out struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding advisor response: %w", err)
	}
	return out.Choice, nil
}
