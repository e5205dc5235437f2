package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/dashboard"
	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/model"
)

// DashboardBuilder is implemented by *dashboard.Service.
type DashboardBuilder interface {
	Build(ctx context.Context, sessionID string, w dashboard.Window, opts dashboard.Options) (*dashboard.Dashboard, error)
}

// DashboardHandler serves the analytics dashboard.
type DashboardHandler struct {
	builder  DashboardBuilder
	settings Settings
	log      zerolog.Logger
}

func NewDashboardHandler(builder DashboardBuilder, settings Settings, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		builder:  builder,
		settings: settings,
		log:      logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Get handles GET /dashboard?start=YYYY-MM-DD&end=YYYY-MM-DD&refresh=true.
func (h *DashboardHandler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sessionID, err := GetSessionID(req, h.settings.JWTSecret)
	if err != nil {
		return unauthorized(), nil
	}

	q := req.QueryStringParameters
	var w dashboard.Window
	if s := q["start"]; s != "" {
		if w.Start, err = model.ParseDate(s); err != nil {
			return errorResponse(http.StatusBadRequest, "Invalid start date", adapter.CauseGeneric), nil
		}
	}
	if s := q["end"]; s != "" {
		if w.End, err = model.ParseDate(s); err != nil {
			return errorResponse(http.StatusBadRequest, "Invalid end date", adapter.CauseGeneric), nil
		}
	}
	refresh := q["refresh"] == "true" || q["refresh"] == "1"

	d, err := h.builder.Build(ctx, sessionID, w, dashboard.Options{ForceRefresh: refresh})
	if errors.Is(err, dashboard.ErrInvalidWindow) {
		return errorResponse(http.StatusBadRequest, err.Error(), adapter.CauseGeneric), nil
	}
	if err != nil {
		cause := adapter.CauseOf(err)
		logging.FromContext(ctx, h.log).Warn().Err(err).Str("cause", string(cause)).Msg("Dashboard request failed")
		return errorResponse(StatusForCause(cause), causeMessage(cause), cause), nil
	}
	return jsonResponse(http.StatusOK, d), nil
}

// Health reports liveness.
func Health(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil
}
