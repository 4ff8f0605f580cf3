// Package controller provides the HTTP request handlers of the vto-panel:
// login and session handling, device CRUD, on-demand unlock and settings.
package controller

import (
	"net/http"

	"github.com/vtolink/vto-panel/web/session"

	"github.com/gin-gonic/gin"
)

// BaseController provides common functionality for all controllers,
// including the authentication guard.
type BaseController struct{}

// checkLogin is a middleware that verifies user authentication and handles
// unauthorized access: JSON 401 for ajax calls, redirect to the login page
// for browser navigation.
func (a *BaseController) checkLogin(c *gin.Context) {
	if !session.IsLogin(c) {
		if isAjax(c) {
			pureJsonMsg(c, http.StatusUnauthorized, false, "please log in again")
		} else {
			c.Redirect(http.StatusTemporaryRedirect, "/login")
		}
		c.Abort()
	} else {
		c.Next()
	}
}
