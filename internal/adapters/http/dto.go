package http

import "github.com/randomtoy/tarot-reading/internal/domain"

// ReadingRequest is the JSON body of POST /v1/readings.
type ReadingRequest struct {
	SpreadInfo      SpreadInfo              `json:"spreadInfo"`
	Cards           []CardRequest           `json:"cards"`
	Question        string                  `json:"question"`
	Reflections     string                  `json:"reflections"`
	DeckStyle       string                  `json:"deckStyle"`
	VisionProof     string                  `json:"visionProof"`
	Personalization *PersonalizationRequest `json:"personalization"`
}

type SpreadInfo struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type CardRequest struct {
	Position    string `json:"position"`
	Card        string `json:"card"`
	Orientation string `json:"orientation"`
	Meaning     string `json:"meaning"`
}

type PersonalizationRequest struct {
	DisplayName string `json:"displayName"`
	Tone        string `json:"tone"`
}

// ReadingResponse is returned by both reading endpoints.
type ReadingResponse struct {
	Reading          string                `json:"reading"`
	Provider         string                `json:"provider"`
	RequestID        string                `json:"requestId"`
	Themes           map[string]any        `json:"themes"`
	Context          string                `json:"context"`
	NarrativeMetrics *domain.QualityResult `json:"narrativeMetrics"`
	SpreadAnalysis   map[string]any        `json:"spreadAnalysis"`
	Cards            []CardResponse        `json:"cards,omitempty"`
	GateBlocked      bool                  `json:"gateBlocked,omitempty"`
	GateReason       string                `json:"gateReason,omitempty"`
}

type CardResponse struct {
	Position    string             `json:"position"`
	Card        string             `json:"card"`
	Orientation domain.Orientation `json:"orientation"`
}

type SpreadResponse struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Count     int      `json:"count"`
	MinTier   string   `json:"minTier"`
	Positions []string `json:"positions"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type QuotaErrorResponse struct {
	Error   string `json:"error"`
	Limit   int    `json:"limit"`
	Used    int    `json:"used"`
	ResetAt string `json:"resetAt"`
}

type BackendErrorResponse struct {
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable"`
	Attempts  []AttemptResponse `json:"attempts"`
}

type AttemptResponse struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

func (r ReadingRequest) toDomain(style domain.DeckStyle, user domain.User) domain.ReadingRequest {
	cards := make([]domain.DrawnCard, len(r.Cards))
	for i, c := range r.Cards {
		cards[i] = domain.DrawnCard{
			Position:    c.Position,
			Name:        c.Card,
			Orientation: domain.Orientation(c.Orientation),
			Meaning:     c.Meaning,
		}
	}
	out := domain.ReadingRequest{
		Spread:      domain.SpreadRef{Key: r.SpreadInfo.Key, Name: r.SpreadInfo.Name, Count: r.SpreadInfo.Count},
		Cards:       cards,
		Question:    r.Question,
		Reflections: r.Reflections,
		DeckStyle:   style,
		VisionProof: r.VisionProof,
		User:        user,
	}
	if r.Personalization != nil {
		out.Personalization = domain.Personalization{
			DisplayName: r.Personalization.DisplayName,
			Tone:        r.Personalization.Tone,
		}
	}
	return out
}
