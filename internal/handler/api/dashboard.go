package api

import (
	"time"

	"github.com/creasty/defaults"
	"github.com/labstack/echo/v4"

	"OptionPulse/internal/domain/models"
	domrepo "OptionPulse/internal/domain/repository"
	"OptionPulse/internal/service/ws"
	"OptionPulse/internal/usecase"
	xhttp "OptionPulse/pkg/http"
	xlogger "OptionPulse/pkg/logger"
	"OptionPulse/pkg/util"
)

// DashboardHandler exposes the pipeline over HTTP: live state, settings,
// signal history, export and the admin controls.
type DashboardHandler struct {
	logger    *xlogger.Logger
	orch      *usecase.Orchestrator
	creds     domrepo.CredentialStore
	settings  domrepo.SettingsStore
	signalLog domrepo.SignalLog
	snapLog   domrepo.SnapshotLog // nil when the durable log is disabled
	hub       *ws.Hub
}

func NewDashboardHandler(
	logger *xlogger.Logger,
	orch *usecase.Orchestrator,
	creds domrepo.CredentialStore,
	settings domrepo.SettingsStore,
	signalLog domrepo.SignalLog,
	snapLog domrepo.SnapshotLog,
	hub *ws.Hub,
) *DashboardHandler {
	return &DashboardHandler{
		logger:    logger,
		orch:      orch,
		creds:     creds,
		settings:  settings,
		signalLog: signalLog,
		snapLog:   snapLog,
		hub:       hub,
	}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health-check", h.HealthCheck)
	e.GET("/ws", h.WebSocket)

	g := e.Group("/api")
	g.GET("/dashboard", h.Dashboard)
	g.GET("/option-chain", h.OptionChain)
	g.GET("/settings/:username", h.GetSettings)
	g.PUT("/settings/:username", h.UpdateSettings)
	g.GET("/logs/:username", h.SignalLogs)
	g.GET("/export-data", h.ExportData)

	g.POST("/auth/token", h.StoreToken)
	g.DELETE("/auth/:username", h.RevokeToken)

	admin := g.Group("/admin")
	admin.POST("/reset-baseline", h.ResetBaseline)
	admin.POST("/polling/enable", h.EnablePolling)
	admin.POST("/polling/disable", h.DisablePolling)
}

// HealthCheck reports component health and pipeline liveness.
func (h *DashboardHandler) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()

	status := map[string]interface{}{
		"status":       "ok",
		"current_user": h.orch.CurrentUser(),
		"polling":      h.orch.Enabled(),
		"subscribers":  h.hub.Subscribers(),
	}
	if last := h.orch.LastSuccessAt(); !last.IsZero() {
		status["last_success"] = last
	}
	if err := h.signalLog.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["signal_log"] = err.Error()
	}
	if h.snapLog != nil {
		if err := h.snapLog.Health(ctx); err != nil {
			status["status"] = "degraded"
			status["snapshot_log"] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, status)
}

// WebSocket upgrades the connection and streams snapshots until the client
// disconnects.
func (h *DashboardHandler) WebSocket(c echo.Context) error {
	return h.hub.Serve(c.Response(), c.Request())
}

// Dashboard returns the latest published snapshot.
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	snap := h.orch.Latest()
	if snap == nil {
		user := h.orch.CurrentUser()
		if user == "" {
			return xhttp.SuccessResponse(c, map[string]string{
				"message": "No authenticated session. Waiting for login.",
			})
		}
		return xhttp.SuccessResponse(c, models.Placeholder(user, time.Now()))
	}
	return xhttp.SuccessResponse(c, snap)
}

// OptionChain returns the option legs of the latest snapshot.
func (h *DashboardHandler) OptionChain(c echo.Context) error {
	snap := h.orch.Latest()
	if snap == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no option chain available yet"))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"timestamp":        snap.Timestamp,
		"underlying_price": snap.UnderlyingPrice,
		"atm_strike":       snap.ATMStrike,
		"expiry_date":      snap.ExpiryDate,
		"options":          snap.Options,
	})
}

// GetSettings returns the user's settings, materializing defaults for users
// without a stored row.
func (h *DashboardHandler) GetSettings(c echo.Context) error {
	username := c.Param("username")
	s, err := h.orch.SettingsFor(c.Request().Context(), username)
	if err != nil {
		h.logger.Error("load settings", xlogger.Error(err), xlogger.String("user", username))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, s)
}

// UpdateSettings applies a partial update. Unknown users get a defaults row
// with the patch applied; previous-day statistics stay pipeline-owned.
func (h *DashboardHandler) UpdateSettings(c echo.Context) error {
	username := c.Param("username")

	patch := &models.SettingsPatch{}
	if verr := xhttp.ReadAndValidateRequest(c, patch); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	s, err := h.orch.SettingsFor(ctx, username)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	patch.Apply(s)
	if verr := xhttp.ValidateStruct(s); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.settings.Put(ctx, s); err != nil {
		h.logger.Error("store settings", xlogger.Error(err), xlogger.String("user", username))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, s)
}

// SignalLogs lists fired signals for a user inside a time range; the range
// defaults to the current IST day.
func (h *DashboardHandler) SignalLogs(c echo.Context) error {
	username := c.Param("username")
	now := time.Now()

	from := util.ParseTimeDefault(c.QueryParam("from"), util.MarketOpenAt(now))
	to := util.ParseTimeDefault(c.QueryParam("to"), now)
	limit := util.ParseIntDefault(c.QueryParam("limit"), 500)

	events, err := h.signalLog.List(c.Request().Context(), username, from, to, limit)
	if err != nil {
		h.logger.Error("list signals", xlogger.Error(err), xlogger.String("user", username))
		return xhttp.AppErrorResponse(c, err)
	}
	if events == nil {
		events = []*models.SignalEvent{}
	}
	return xhttp.ListResponse(c, events, int64(len(events)))
}

type tokenRequest struct {
	Username    string `json:"username" validate:"required,min=1"`
	AccessToken string `json:"access_token" validate:"required,min=1"`
}

// StoreToken registers an access token; the scheduler discovers it on its
// next pass and starts polling for the user.
func (h *DashboardHandler) StoreToken(c echo.Context) error {
	req := &tokenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cred := &models.Credential{
		Username:    req.Username,
		AccessToken: req.AccessToken,
		IssuedAt:    time.Now(),
	}
	if err := h.creds.Put(c.Request().Context(), cred); err != nil {
		h.logger.Error("store credential", xlogger.Error(err), xlogger.String("user", req.Username))
		return xhttp.AppErrorResponse(c, err)
	}

	// Seed a defaults settings row so the first cycle does not race the
	// first settings read.
	if s, _ := h.settings.Get(c.Request().Context(), req.Username); s == nil {
		s = &models.Settings{Username: req.Username}
		if err := defaults.Set(s); err == nil {
			_ = h.settings.Put(c.Request().Context(), s)
		}
	}

	h.logger.Info("credential stored", xlogger.String("user", req.Username))
	return xhttp.CreatedResponse(c, map[string]string{"username": req.Username})
}

// RevokeToken removes a user's credential; polling stops at the next
// discovery pass.
func (h *DashboardHandler) RevokeToken(c echo.Context) error {
	username := c.Param("username")
	if err := h.creds.Delete(c.Request().Context(), username); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("credential revoked", xlogger.String("user", username))
	return xhttp.NoContentResponse(c)
}

// ResetBaseline clears the active session's baseline; the next cycle
// recaptures from live data.
func (h *DashboardHandler) ResetBaseline(c echo.Context) error {
	if err := h.orch.ResetBaseline(c.Request().Context()); err != nil {
		if err == usecase.ErrNoSession {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no active session"))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "baseline reset"})
}

func (h *DashboardHandler) EnablePolling(c echo.Context) error {
	h.orch.Enable()
	return xhttp.SuccessResponse(c, map[string]bool{"polling": true})
}

func (h *DashboardHandler) DisablePolling(c echo.Context) error {
	h.orch.Disable()
	return xhttp.SuccessResponse(c, map[string]bool{"polling": false})
}
