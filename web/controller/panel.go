package controller

import (
	"github.com/vtolink/vto-panel/web/service"

	"github.com/gin-gonic/gin"
)

// PanelController groups every authenticated page behind the login guard.
type PanelController struct {
	BaseController

	deviceService service.DeviceService
	statusService service.StatusService

	deviceController  *DeviceController
	settingController *SettingController
}

func NewPanelController(g *gin.RouterGroup) *PanelController {
	a := &PanelController{}
	a.initRouter(g)
	return a
}

func (a *PanelController) initRouter(g *gin.RouterGroup) {
	g = g.Group("")
	g.Use(a.checkLogin)

	g.GET("/dashboard", a.dashboard)

	a.deviceController = NewDeviceController(g)
	a.settingController = NewSettingController(g)
}

// dashboard renders the summary view: device count and online/offline
// tallies where known.
func (a *PanelController) dashboard(c *gin.Context) {
	devices, err := a.deviceService.GetDevices()
	if err != nil {
		html(c, "dashboard.html", "Dashboard", gin.H{"error": err.Error()})
		return
	}
	ids := make([]int, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.Id)
	}
	online, offline := a.statusService.Counts(ids)

	html(c, "dashboard.html", "Dashboard", gin.H{
		"deviceCount": len(devices),
		"online":      online,
		"offline":     offline,
		"devices":     devices,
	})
}
