package http

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// Headers set by the trusted gateway.
const (
	headerUserID   = "X-User-Id"
	headerUserTier = "X-User-Tier"
	headerClientID = "X-Client-Id"
)

var clientNamespace = uuid.MustParse("8f14e45f-ceea-467f-a0e6-0b5b5f6c7d21")

// identify builds the caller identity. Without a user id the caller is
// anonymous and keyed by a stable client id.
func identify(c echo.Context) domain.User {
	req := c.Request()
	if id := strings.TrimSpace(req.Header.Get(headerUserID)); id != "" {
		return domain.User{ID: id, Tier: parseTier(req.Header.Get(headerUserTier))}
	}

	seed := strings.TrimSpace(req.Header.Get(headerClientID))
	if seed == "" {
		seed = c.RealIP() + "|" + req.UserAgent()
	}
	return domain.User{
		Tier:      domain.TierFree,
		ClientID:  uuid.NewSHA1(clientNamespace, []byte(seed)).String(),
		Anonymous: true,
	}
}

func parseTier(s string) domain.Tier {
	switch t := domain.Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case domain.TierPlus, domain.TierPro:
		return t
	default:
		return domain.TierFree
	}
}
