// Package api exposes the alert engine over HTTP and websocket.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trading-alerts/internal/alerting"
	"trading-alerts/internal/indicator"
	"trading-alerts/internal/model"
	"trading-alerts/internal/notification"
	"trading-alerts/internal/symbols"
)

// Deps lists the components served by the router.
type Deps struct {
	Manager    *alerting.Manager
	Symbols    *symbols.Registry
	Indicators *indicator.Registry
	Market     model.MarketData
	Catalog    model.AssetCatalog  // optional; enables POST /symbols/sync
	Inbox      *notification.Inbox // optional
	Hub        *Hub                // optional; enables GET /ws
	TOTPSecret string              // optional; guards mutating routes
}

type handler struct {
	Deps
	log *logrus.Entry
}

// NewRouter builds the gin engine. Symbols containing a slash are passed
// with the slash escaped, e.g. /symbols/BTC%2FUSD.
func NewRouter(d Deps, log *logrus.Entry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	log = log.WithField("component", "api")

	r := gin.New()
	r.UseRawPath = true
	r.Use(gin.Recovery())
	r.Use(RequestLogging(log))

	h := &handler{Deps: d, log: log}
	api := r.Group("/api/v1")
	{
		api.GET("/alerts", h.listAlerts)
		api.GET("/alerts/:id", h.getAlert)

		api.GET("/symbols", h.listSymbols)
		api.GET("/symbols/:symbol", h.getSymbol)
		api.GET("/symbols/:symbol/price", h.symbolPrice)

		api.GET("/indicators", h.listIndicators)
		api.GET("/settings", h.getSettings)
		api.GET("/scheduler", h.schedulerStatus)
		api.GET("/market", h.marketStatus)
		api.GET("/notifications", h.listNotifications)
		if d.Hub != nil {
			api.GET("/ws", d.Hub.ServeWS)
		}
	}

	admin := api.Group("", RequireTOTP(d.TOTPSecret))
	{
		admin.POST("/alerts", h.createAlert)
		admin.PATCH("/alerts/:id", h.updateAlert)
		admin.DELETE("/alerts/:id", h.deleteAlert)
		admin.POST("/alerts/:id/activate", h.activateAlert)
		admin.POST("/alerts/:id/deactivate", h.deactivateAlert)
		admin.POST("/alerts/:id/check", h.checkAlert)
		admin.POST("/alerts/check", h.checkAllAlerts)

		admin.POST("/symbols", h.addSymbol)
		admin.POST("/symbols/sync", h.syncSymbols)
		admin.PATCH("/symbols/:symbol", h.updateSymbol)
		admin.DELETE("/symbols/:symbol", h.deleteSymbol)
		admin.POST("/symbols/:symbol/enable", h.enableSymbol)
		admin.POST("/symbols/:symbol/disable", h.disableSymbol)

		admin.PATCH("/settings", h.updateSettings)
		admin.POST("/scheduler/start", h.startScheduler)
		admin.POST("/scheduler/stop", h.stopScheduler)
	}
	return r
}
