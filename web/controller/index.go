package controller

import (
	"net/http"
	"text/template"

	"github.com/vtolink/vto-panel/logger"
	"github.com/vtolink/vto-panel/web/service"
	"github.com/vtolink/vto-panel/web/session"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// LoginForm represents the login request structure.
type LoginForm struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// IndexController handles the root, login and logout routes.
type IndexController struct {
	BaseController

	settingService service.SettingService
	userService    service.UserService
}

// NewIndexController creates a new IndexController and initializes its routes.
func NewIndexController(g *gin.RouterGroup) *IndexController {
	a := &IndexController{}
	a.initRouter(g)
	return a
}

func (a *IndexController) initRouter(g *gin.RouterGroup) {
	g.GET("/", a.index)
	g.GET("/login", a.loginPage)
	g.POST("/login", a.login)
	g.GET("/logout", a.logout)
	g.POST("/logout", a.logout)
}

// index redirects to the dashboard for logged-in users, the login page otherwise.
func (a *IndexController) index(c *gin.Context) {
	if session.IsLogin(c) {
		c.Redirect(http.StatusTemporaryRedirect, "/dashboard")
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, "/login")
}

func (a *IndexController) loginPage(c *gin.Context) {
	if session.IsLogin(c) {
		c.Redirect(http.StatusTemporaryRedirect, "/dashboard")
		return
	}
	html(c, "login.html", "Login", nil)
}

// login handles user authentication and session creation.
func (a *IndexController) login(c *gin.Context) {
	var form LoginForm

	if err := c.ShouldBind(&form); err != nil {
		a.loginFailed(c, "invalid form data")
		return
	}
	if form.Username == "" {
		a.loginFailed(c, "username can not be empty")
		return
	}
	if form.Password == "" {
		a.loginFailed(c, "password can not be empty")
		return
	}

	user := a.userService.CheckUser(form.Username, form.Password)
	safeUser := template.HTMLEscapeString(form.Username)

	if user == nil {
		logger.Warningf("wrong username or password for %q, IP: %q", safeUser, getRemoteIp(c))
		a.loginFailed(c, "wrong username or password")
		return
	}

	sessionMaxAge, err := a.settingService.GetSessionMaxAge()
	if err != nil {
		logger.Warning("unable to get session max age from DB:", err)
	}

	session.SetMaxAge(c, sessionMaxAge*60)
	session.SetLoginUser(c, user)
	if err := sessions.Default(c).Save(); err != nil {
		logger.Warning("unable to save session:", err)
		return
	}

	logger.Infof("%s logged in successfully, IP: %s", safeUser, getRemoteIp(c))
	if isAjax(c) {
		jsonMsg(c, "login successful", nil)
		return
	}
	c.Redirect(http.StatusFound, "/dashboard")
}

func (a *IndexController) loginFailed(c *gin.Context, msg string) {
	if isAjax(c) {
		pureJsonMsg(c, http.StatusOK, false, msg)
		return
	}
	html(c, "login.html", "Login", gin.H{"error": msg})
}

// logout clears the session and returns to the login page.
func (a *IndexController) logout(c *gin.Context) {
	user := session.GetLoginUser(c)
	if user != nil {
		logger.Infof("%s logged out successfully", user.Username)
	}
	session.ClearSession(c)
	if err := sessions.Default(c).Save(); err != nil {
		logger.Warning("unable to save session after clearing:", err)
	}
	c.Redirect(http.StatusTemporaryRedirect, "/login")
}
