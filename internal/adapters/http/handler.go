package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/randomtoy/tarot-reading/internal/app"
	"github.com/randomtoy/tarot-reading/internal/domain"
)

const maxBodyBytes = 64 << 10

// Service is the application surface the handler drives.
type Service interface {
	Read(ctx context.Context, requestID string, req domain.ReadingRequest) (*app.Outcome, error)
	Finalize(ctx context.Context, out *app.Outcome)
	Draw(ctx context.Context, spreadKey string, style domain.DeckStyle) (domain.SpreadDef, []domain.DrawnCard, error)
	Spreads(ctx context.Context) ([]domain.SpreadDef, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	e.GET("/v1/spreads", h.ListSpreads)
	e.GET("/v1/tarot", h.ReadTarot)
	e.POST("/v1/readings", h.CreateReading)
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) ListSpreads(c echo.Context) error {
	defs, err := h.svc.Spreads(c.Request().Context())
	if err != nil {
		return h.mapError(c, err)
	}
	out := make([]SpreadResponse, len(defs))
	for i, d := range defs {
		positions := make([]string, len(d.Positions))
		for j, p := range d.Positions {
			positions[j] = p.Name
		}
		out[i] = SpreadResponse{Key: d.Key, Name: d.Name, Count: d.Count(), MinTier: string(d.MinTier), Positions: positions}
	}
	return c.JSON(http.StatusOK, out)
}

// CreateReading interprets a spread the client laid out.
func (h *Handler) CreateReading(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "could not read body"})
	}
	if len(body) > maxBodyBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "body too large"})
	}
	problems, err := validateBody(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body must be a JSON object"})
	}
	if len(problems) > 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid reading request", Details: problems})
	}

	var dto ReadingRequest
	if err := json.Unmarshal(body, &dto); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "body must be a JSON object"})
	}
	style, err := domain.ParseDeckStyle(dto.DeckStyle)
	if err != nil {
		return h.mapError(c, err)
	}
	return h.respond(c, dto.toDomain(style, identify(c)))
}

// ReadTarot draws a spread server-side and interprets it.
func (h *Handler) ReadTarot(c echo.Context) error {
	q := c.QueryParam("q")
	if len(q) > domain.MaxQuestionLen {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "q must be at most 500 characters"})
	}
	key := c.QueryParam("spread")
	if key == "" {
		key = "threeCard"
	}
	style, err := domain.ParseDeckStyle(c.QueryParam("deck"))
	if err != nil {
		return h.mapError(c, err)
	}

	def, cards, err := h.svc.Draw(c.Request().Context(), key, style)
	if err != nil {
		return h.mapError(c, err)
	}
	return h.respond(c, domain.ReadingRequest{
		Spread:    domain.SpreadRef{Key: def.Key, Name: def.Name, Count: def.Count()},
		Cards:     cards,
		Question:  q,
		DeckStyle: style,
		User:      identify(c),
	})
}

func (h *Handler) respond(c echo.Context, req domain.ReadingRequest) error {
	ctx := c.Request().Context()
	requestID, _ := c.Get("request_id").(string)

	out, err := h.svc.Read(ctx, requestID, req)
	if err != nil {
		return h.mapError(c, err)
	}
	if err := c.JSON(http.StatusOK, toResponse(out)); err != nil {
		return err
	}
	c.Response().Flush()
	// Telemetry and the deep evaluation must not be tied to the client
	// connection that has just been served.
	h.svc.Finalize(context.WithoutCancel(ctx), out)
	return nil
}

func toResponse(o *app.Outcome) ReadingResponse {
	cards := make([]CardResponse, len(o.Cards))
	for i, dc := range o.Cards {
		cards[i] = CardResponse{Position: dc.Position, Card: dc.Name, Orientation: dc.Orientation}
	}
	return ReadingResponse{
		Reading:          o.Reading,
		Provider:         o.Provider,
		RequestID:        o.RequestID,
		Themes:           o.Themes,
		Context:          o.Context,
		NarrativeMetrics: o.NarrativeMetrics,
		SpreadAnalysis:   o.SpreadAnalysis,
		Cards:            cards,
		GateBlocked:      o.GateBlocked,
		GateReason:       o.GateReason,
	}
}

func (h *Handler) mapError(c echo.Context, err error) error {
	requestID, _ := c.Get("request_id").(string)

	var verr *domain.ValidationError
	var qerr *domain.QuotaExceededError
	var berr *domain.BackendsExhaustedError

	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid reading request", Details: verr.Problems})
	case errors.Is(err, domain.ErrTierRequired):
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrVisionProofExpired):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "vision proof expired"})
	case errors.Is(err, domain.ErrVisionProofInvalid),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidN),
		errors.Is(err, domain.ErrNExceedsDeck):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &qerr):
		return c.JSON(http.StatusTooManyRequests, QuotaErrorResponse{
			Error:   "monthly reading quota exceeded",
			Limit:   qerr.Limit,
			Used:    qerr.Used,
			ResetAt: qerr.ResetAt.UTC().Format(time.RFC3339),
		})
	case errors.As(err, &berr):
		h.logger.Error("all backends failed", "request_id", requestID, "error", err)
		attempts := make([]AttemptResponse, len(berr.Attempts))
		for i, a := range berr.Attempts {
			attempts[i] = AttemptResponse{Provider: a.Backend, Reason: string(a.Reason)}
		}
		return c.JSON(http.StatusServiceUnavailable, BackendErrorResponse{
			Error:     "reading service temporarily unavailable",
			Retryable: true,
			Attempts:  attempts,
		})
	default:
		h.logger.Error("internal error", "request_id", requestID, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
