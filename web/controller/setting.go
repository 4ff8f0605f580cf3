package controller

import (
	"net/http"

	"github.com/vtolink/vto-panel/util/crypto"
	"github.com/vtolink/vto-panel/web/entity"
	"github.com/vtolink/vto-panel/web/global"
	"github.com/vtolink/vto-panel/web/service"
	"github.com/vtolink/vto-panel/web/session"

	"github.com/gin-gonic/gin"
)

// changePasswordForm requires the current password before rotation.
type changePasswordForm struct {
	CurrentPassword string `json:"currentPassword" form:"currentPassword"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
}

// SettingController handles the settings page and credential rotation.
type SettingController struct {
	settingService service.SettingService
	userService    service.UserService
	bemfaService   service.BemfaSyncService
}

func NewSettingController(g *gin.RouterGroup) *SettingController {
	a := &SettingController{}
	a.initRouter(g)
	return a
}

func (a *SettingController) initRouter(g *gin.RouterGroup) {
	g.GET("/settings", a.settingsPage)
	g.POST("/save_settings", a.saveSettings)
	g.POST("/sync_bemfa_devices", a.syncBemfaDevices)
	g.GET("/change_password", a.changePasswordPage)
	g.POST("/change_password", a.changePassword)
}

func (a *SettingController) settingsPage(c *gin.Context) {
	allSetting, err := a.settingService.GetAllSetting()
	if err != nil {
		html(c, "settings.html", "Settings", gin.H{"error": err.Error()})
		return
	}
	relayState := ""
	if server := global.GetWebServer(); server != nil {
		relayState = server.RelayState()
	}
	html(c, "settings.html", "Settings", gin.H{
		"settings":   allSetting,
		"relayState": relayState,
	})
}

// saveSettings validates and persists the settings, then refreshes the
// relay immediately so enable/disable takes effect without waiting for the
// periodic sync.
func (a *SettingController) saveSettings(c *gin.Context) {
	allSetting := &entity.AllSetting{}
	if err := c.ShouldBind(allSetting); err != nil {
		a.renderSettings(c, allSetting, "invalid form data")
		return
	}
	if err := a.settingService.UpdateAllSetting(allSetting); err != nil {
		a.renderSettings(c, allSetting, err.Error())
		return
	}
	if server := global.GetWebServer(); server != nil {
		server.RefreshRelay()
	}
	if isAjax(c) {
		jsonMsg(c, "settings saved", nil)
		return
	}
	c.Redirect(http.StatusFound, "/settings")
}

func (a *SettingController) renderSettings(c *gin.Context, allSetting *entity.AllSetting, errMsg string) {
	if isAjax(c) {
		pureJsonMsg(c, http.StatusOK, false, errMsg)
		return
	}
	relayState := ""
	if server := global.GetWebServer(); server != nil {
		relayState = server.RelayState()
	}
	html(c, "settings.html", "Settings", gin.H{
		"settings":   allSetting,
		"relayState": relayState,
		"error":      errMsg,
	})
}

// syncBemfaDevices reconciles the cloud topic registry with the device
// table and then refreshes the relay so new subscriptions pick up.
func (a *SettingController) syncBemfaDevices(c *gin.Context) {
	result, err := a.bemfaService.SyncDevices(c.Request.Context())
	if err != nil {
		jsonMsg(c, "sync topics with bemfa cloud", err)
		return
	}
	if server := global.GetWebServer(); server != nil {
		server.RefreshRelay()
	}
	jsonObj(c, result, nil)
}

func (a *SettingController) changePasswordPage(c *gin.Context) {
	html(c, "change_password.html", "Change password", nil)
}

// changePassword rotates the password of the logged-in user. A wrong
// current password is a validation failure and leaves the stored hash
// untouched.
func (a *SettingController) changePassword(c *gin.Context) {
	form := &changePasswordForm{}
	if err := c.ShouldBind(form); err != nil {
		a.changePasswordFailed(c, "invalid form data")
		return
	}
	user := session.GetLoginUser(c)
	if user == nil {
		c.Redirect(http.StatusTemporaryRedirect, "/login")
		return
	}
	if !crypto.CheckPasswordHash(user.Password, form.CurrentPassword) {
		a.changePasswordFailed(c, "current password is incorrect")
		return
	}
	if form.NewPassword == "" {
		a.changePasswordFailed(c, "new password can not be empty")
		return
	}
	if err := a.userService.UpdatePassword(user.Id, form.NewPassword); err != nil {
		a.changePasswordFailed(c, err.Error())
		return
	}
	user.Password, _ = crypto.HashPasswordAsBcrypt(form.NewPassword)
	session.SetLoginUser(c, user)
	if isAjax(c) {
		jsonMsg(c, "password changed", nil)
		return
	}
	html(c, "change_password.html", "Change password", gin.H{"success": "password changed"})
}

func (a *SettingController) changePasswordFailed(c *gin.Context, msg string) {
	if isAjax(c) {
		pureJsonMsg(c, http.StatusOK, false, msg)
		return
	}
	html(c, "change_password.html", "Change password", gin.H{"error": msg})
}
