package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-alerts/internal/alerting"
	"trading-alerts/internal/markethours"
	"trading-alerts/internal/model"
	"trading-alerts/internal/symbols"
)

// redacted replaces secrets in settings responses. A PATCH carrying it
// back leaves the stored secret unchanged.
const redacted = "********"

const defaultNotificationLimit = 50

// ── Alerts ──

func (h *handler) listAlerts(c *gin.Context) {
	list := h.Manager.GetAllAlerts()
	if v := c.Query("active"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, fmt.Errorf("active: %w", err))
			return
		}
		filtered := list[:0]
		for _, a := range list {
			if a.Active == want {
				filtered = append(filtered, a)
			}
		}
		list = filtered
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) getAlert(c *gin.Context) {
	a, ok := h.Manager.GetAlert(c.Param("id"))
	if !ok {
		notFound(c, "alert", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handler) createAlert(c *gin.Context) {
	var in alerting.NewAlert
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.Manager.CreateAlert(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *handler) updateAlert(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.Manager.UpdateAlert(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handler) deleteAlert(c *gin.Context) {
	ok, err := h.Manager.DeleteAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "alert", c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) activateAlert(c *gin.Context) {
	h.setAlertActive(c, h.Manager.ActivateAlert)
}

func (h *handler) deactivateAlert(c *gin.Context) {
	h.setAlertActive(c, h.Manager.DeactivateAlert)
}

func (h *handler) setAlertActive(c *gin.Context, fn func(context.Context, string) (bool, error)) {
	id := c.Param("id")
	ok, err := fn(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "alert", id)
		return
	}
	a, _ := h.Manager.GetAlert(id)
	c.JSON(http.StatusOK, a)
}

func (h *handler) checkAlert(c *gin.Context) {
	res := h.Manager.CheckAlert(c.Request.Context(), c.Param("id"))
	if errors.Is(res.Err, model.ErrNotFound) {
		notFound(c, "alert", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) checkAllAlerts(c *gin.Context) {
	results := h.Manager.CheckAllAlerts(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// ── Symbols ──

func (h *handler) listSymbols(c *gin.Context) {
	if v, _ := strconv.ParseBool(c.Query("available")); v {
		c.JSON(http.StatusOK, h.Symbols.ListAvailable())
		return
	}
	c.JSON(http.StatusOK, h.Symbols.List())
}

func (h *handler) getSymbol(c *gin.Context) {
	s, ok := h.Symbols.Get(c.Param("symbol"))
	if !ok {
		notFound(c, "symbol", symbols.Normalize(c.Param("symbol")))
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) addSymbol(c *gin.Context) {
	var in symbols.NewSymbol
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.Symbols.Add(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handler) updateSymbol(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.Symbols.Update(c.Request.Context(), c.Param("symbol"), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) deleteSymbol(c *gin.Context) {
	ok, err := h.Symbols.Delete(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "symbol", symbols.Normalize(c.Param("symbol")))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) enableSymbol(c *gin.Context) {
	h.setSymbolAvailable(c, h.Symbols.Enable)
}

func (h *handler) disableSymbol(c *gin.Context) {
	h.setSymbolAvailable(c, h.Symbols.Disable)
}

func (h *handler) setSymbolAvailable(c *gin.Context, fn func(context.Context, string) (bool, error)) {
	key := c.Param("symbol")
	ok, err := fn(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		notFound(c, "symbol", symbols.Normalize(key))
		return
	}
	s, _ := h.Symbols.Get(key)
	c.JSON(http.StatusOK, s)
}

func (h *handler) symbolPrice(c *gin.Context) {
	key := symbols.Normalize(c.Param("symbol"))
	price, err := h.Symbols.LatestPrice(c.Request.Context(), h.Market, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": key, "price": price})
}

func (h *handler) syncSymbols(c *gin.Context) {
	if h.Catalog == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no asset catalog configured"})
		return
	}
	res, err := h.Symbols.Sync(c.Request.Context(), h.Catalog)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ── Indicators ──

func (h *handler) listIndicators(c *gin.Context) {
	c.JSON(http.StatusOK, h.Indicators.Specs())
}

// ── Settings and scheduler ──

func (h *handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, redact(h.Manager.Settings()))
}

func (h *handler) updateSettings(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, err)
		return
	}
	dropRedacted(fields)
	s, err := h.Manager.UpdateSettings(c.Request.Context(), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, redact(s))
}

func (h *handler) schedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":        h.Manager.SchedulerRunning(),
		"check_interval": h.Manager.Settings().CheckInterval,
	})
}

func (h *handler) marketStatus(c *gin.Context) {
	c.JSON(http.StatusOK, markethours.StatusAt(time.Now()))
}

func (h *handler) startScheduler(c *gin.Context) {
	started := h.Manager.StartChecking()
	c.JSON(http.StatusOK, gin.H{"started": started, "running": h.Manager.SchedulerRunning()})
}

func (h *handler) stopScheduler(c *gin.Context) {
	if err := h.Manager.StopChecking(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": h.Manager.SchedulerRunning()})
}

// ── Notifications ──

func (h *handler) listNotifications(c *gin.Context) {
	if h.Inbox == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	if v := c.Query("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, fmt.Errorf("after: %w", err))
			return
		}
		c.JSON(http.StatusOK, h.Inbox.Since(after))
		return
	}
	limit := defaultNotificationLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, h.Inbox.Recent(limit))
}

func redact(s model.Settings) model.Settings {
	ns := &s.NotificationSettings
	if ns.Email.Password != "" {
		ns.Email.Password = redacted
	}
	if ns.Telegram.BotToken != "" {
		ns.Telegram.BotToken = redacted
	}
	return s
}

// dropRedacted removes secrets a client echoed back from a settings patch.
func dropRedacted(fields map[string]any) {
	ns, ok := fields["notification_settings"].(map[string]any)
	if !ok {
		return
	}
	for section, key := range map[string]string{"email": "password", "telegram": "bot_token"} {
		if m, ok := ns[section].(map[string]any); ok && m[key] == redacted {
			delete(m, key)
		}
	}
}
