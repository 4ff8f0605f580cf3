package global

import (
	"context"
)

var webServer WebServer

type WebServer interface {
	// GetCtx is the server lifetime context; device calls derive from it
	// so shutdown aborts them.
	GetCtx() context.Context
	// RefreshRelay re-reads the MQTT settings and topic set immediately,
	// without waiting for the periodic sync job.
	RefreshRelay()
	// RelayState describes the relay connection for the settings page.
	RelayState() string
}

func SetWebServer(s WebServer) {
	webServer = s
}

func GetWebServer() WebServer {
	return webServer
}
