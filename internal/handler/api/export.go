package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"OptionPulse/internal/domain/models"
	xhttp "OptionPulse/pkg/http"
	xlogger "OptionPulse/pkg/logger"
	"OptionPulse/pkg/util"
)

var exportHeader = []string{
	"poll_ts", "seq", "underlying", "open_price", "atm_strike", "expiry",
	"call_delta", "call_vega", "call_theta", "call_gamma",
	"put_delta", "put_vega", "put_theta", "put_gamma",
	"drift_call_delta", "drift_call_vega", "drift_call_theta", "drift_call_gamma",
	"drift_put_delta", "drift_put_vega", "drift_put_theta", "drift_put_gamma",
	"rv_current", "rv_ratio", "vol_state",
	"gap", "rea", "de", "direction_state",
	"signals_fired",
}

// ExportData streams the durable snapshot history for a user as CSV.
func (h *DashboardHandler) ExportData(c echo.Context) error {
	if h.snapLog == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("snapshot history is not enabled"))
	}

	username := c.QueryParam("username")
	if username == "" {
		username = h.orch.CurrentUser()
	}
	if username == "" {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestError("username is required"))
	}

	now := time.Now()
	from := util.ParseTimeDefault(c.QueryParam("from"), util.MarketOpenAt(now))
	to := util.ParseTimeDefault(c.QueryParam("to"), now)
	limit := util.ParseIntDefault(c.QueryParam("limit"), 5000)

	snaps, err := h.snapLog.Query(c.Request().Context(), username, from, to, limit)
	if err != nil {
		h.logger.Error("query snapshots", xlogger.Error(err), xlogger.String("user", username))
		return xhttp.AppErrorResponse(c, err)
	}

	fname := fmt.Sprintf("%s_%s.csv", username, util.ISTDate(now))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+fname+`"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write(exportHeader); err != nil {
		return err
	}
	for _, snap := range snaps {
		if err := w.Write(exportRow(snap)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportRow(snap *models.PublishedSnapshot) []string {
	row := []string{
		snap.PollTimestamp.UTC().Format(time.RFC3339),
		strconv.FormatUint(snap.Sequence, 10),
		f(snap.UnderlyingPrice),
		f(snap.OpenPrice),
		f(snap.ATMStrike),
		snap.ExpiryDate,
	}
	row = append(row, sideCols(snap.Aggregated)...)
	row = append(row, sideCols(snap.Drift)...)

	if v := snap.Volatility; v != nil {
		row = append(row, f(v.RVCurrent), fp(v.RVRatio), string(v.State))
	} else {
		row = append(row, "", "", "")
	}
	if d := snap.Direction; d != nil {
		row = append(row, f(d.Gap), fp(d.REA), fp(d.DE), string(d.DirectionalState))
	} else {
		row = append(row, "", "", "", "")
	}

	fired := ""
	for _, sig := range snap.Signals {
		if !sig.Fired {
			continue
		}
		if fired != "" {
			fired += ";"
		}
		fired += string(sig.Position)
	}
	return append(row, fired)
}

func sideCols(g *models.AggregatedGreeks) []string {
	if g == nil {
		return []string{"", "", "", "", "", "", "", ""}
	}
	return []string{
		f(g.Call.Delta), f(g.Call.Vega), f(g.Call.Theta), f(g.Call.Gamma),
		f(g.Put.Delta), f(g.Put.Vega), f(g.Put.Theta), f(g.Put.Gamma),
	}
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fp(v *float64) string {
	if v == nil {
		return ""
	}
	return f(*v)
}
