package controller

import (
	"net/http"
	"strconv"

	"github.com/vtolink/vto-panel/database/model"
	"github.com/vtolink/vto-panel/web/entity"
	"github.com/vtolink/vto-panel/web/service"

	"github.com/gin-gonic/gin"
)

// deviceForm is the add/edit device form.
type deviceForm struct {
	Name      string `json:"name" form:"name"`
	Group     string `json:"group" form:"group"`
	Ip        string `json:"ip" form:"ip"`
	Username  string `json:"username" form:"username"`
	Password  string `json:"password" form:"password"`
	MqttTopic string `json:"mqttTopic" form:"mqttTopic"`
}

// DeviceController handles device CRUD and the on-demand unlock endpoint.
type DeviceController struct {
	deviceService service.DeviceService
	statusService service.StatusService
}

func NewDeviceController(g *gin.RouterGroup) *DeviceController {
	a := &DeviceController{}
	a.initRouter(g)
	return a
}

func (a *DeviceController) initRouter(g *gin.RouterGroup) {
	g.GET("/devices", a.devices)
	g.GET("/add_device", a.addDevicePage)
	g.POST("/add_device", a.addDevice)
	g.GET("/edit_device/:id", a.editDevicePage)
	g.POST("/edit_device/:id", a.editDevice)
	g.GET("/delete_device/:id", a.deleteDevice)
	g.GET("/unlock_device/:id", a.unlockDevice)
}

func (a *DeviceController) devices(c *gin.Context) {
	devices, err := a.deviceService.GetDevices()
	if err != nil {
		html(c, "devices.html", "Devices", gin.H{"error": err.Error()})
		return
	}
	// Last observation of the status poll; "unknown" until the first probe.
	statuses := make(map[int]string, len(devices))
	for _, d := range devices {
		online, known := a.statusService.IsOnline(d.Id)
		switch {
		case !known:
			statuses[d.Id] = "unknown"
		case online:
			statuses[d.Id] = "online"
		default:
			statuses[d.Id] = "offline"
		}
	}
	html(c, "devices.html", "Devices", gin.H{
		"devices":  devices,
		"statuses": statuses,
	})
}

func (a *DeviceController) addDevicePage(c *gin.Context) {
	html(c, "device_form.html", "Add device", gin.H{
		"action": "/add_device",
		"device": &model.Device{},
	})
}

func (a *DeviceController) addDevice(c *gin.Context) {
	form := &deviceForm{}
	if err := c.ShouldBind(form); err != nil {
		a.renderForm(c, "/add_device", form.toModel(0), "invalid form data")
		return
	}
	device := form.toModel(0)
	if err := a.deviceService.AddDevice(device); err != nil {
		a.renderForm(c, "/add_device", device, err.Error())
		return
	}
	c.Redirect(http.StatusFound, "/devices")
}

func (a *DeviceController) editDevicePage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/devices")
		return
	}
	device, err := a.deviceService.GetDevice(id)
	if err != nil {
		c.Redirect(http.StatusFound, "/devices")
		return
	}
	html(c, "device_form.html", "Edit device", gin.H{
		"action": "/edit_device/" + strconv.Itoa(id),
		"device": device,
	})
}

func (a *DeviceController) editDevice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/devices")
		return
	}
	form := &deviceForm{}
	action := "/edit_device/" + strconv.Itoa(id)
	if err := c.ShouldBind(form); err != nil {
		a.renderForm(c, action, form.toModel(id), "invalid form data")
		return
	}
	device := form.toModel(id)
	if err := a.deviceService.UpdateDevice(device); err != nil {
		a.renderForm(c, action, device, err.Error())
		return
	}
	c.Redirect(http.StatusFound, "/devices")
}

func (a *DeviceController) deleteDevice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err == nil {
		if err := a.deviceService.DeleteDevice(id); err == nil {
			a.statusService.Forget(id)
		}
	}
	c.Redirect(http.StatusFound, "/devices")
}

// unlockDevice triggers the vendor unlock and always answers HTTP 200 with
// a success flag; the UI polls this endpoint for feedback.
func (a *DeviceController) unlockDevice(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusOK, entity.Msg{Success: false, Msg: "invalid device id"})
		return
	}
	device, err := a.deviceService.GetDevice(id)
	if err != nil {
		c.JSON(http.StatusOK, entity.Msg{Success: false, Msg: "device not found"})
		return
	}
	result := a.deviceService.Unlock(device)
	c.JSON(http.StatusOK, entity.Msg{Success: result.Success, Msg: result.Msg})
}

func (a *DeviceController) renderForm(c *gin.Context, action string, device *model.Device, errMsg string) {
	html(c, "device_form.html", "Device", gin.H{
		"action": action,
		"device": device,
		"error":  errMsg,
	})
}

func (f *deviceForm) toModel(id int) *model.Device {
	return &model.Device{
		Id:        id,
		Name:      f.Name,
		GroupName: f.Group,
		Ip:        f.Ip,
		Username:  f.Username,
		Password:  f.Password,
		MqttTopic: f.MqttTopic,
	}
}
