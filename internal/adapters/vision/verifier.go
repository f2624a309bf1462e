// Package vision verifies proofs issued by the card-recognition service.
//
// A proof is base64url(payload) "." base64url(HMAC-SHA256(payload)), where the
// payload is JSON {"exp": unix seconds, "cards": [{"card", "confidence"}]}.
package vision

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

type payload struct {
	Exp   int64                  `json:"exp"`
	Cards []domain.VisionInsight `json:"cards"`
}

// Verifier implements ports.VisionVerifier.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Verify(token string) ([]domain.VisionInsight, error) {
	body, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || body == "" || sig == "" {
		return nil, fmt.Errorf("%w: malformed token", domain.ErrVisionProofInvalid)
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding", domain.ErrVisionProofInvalid)
	}
	if !hmac.Equal(got, v.mac(body)) {
		return nil, fmt.Errorf("%w: signature mismatch", domain.ErrVisionProofInvalid)
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", domain.ErrVisionProofInvalid)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", domain.ErrVisionProofInvalid, err)
	}
	if p.Exp == 0 || !v.now().Before(time.Unix(p.Exp, 0)) {
		return nil, domain.ErrVisionProofExpired
	}
	return p.Cards, nil
}

// Sign issues a proof for cards valid until exp.
func (v *Verifier) Sign(cards []domain.VisionInsight, exp time.Time) (string, error) {
	raw, err := json.Marshal(payload{Exp: exp.Unix(), Cards: cards})
	if err != nil {
		return "", fmt.Errorf("marshal proof: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + base64.RawURLEncoding.EncodeToString(v.mac(body)), nil
}

func (v *Verifier) mac(body string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(body))
	return h.Sum(nil)
}
