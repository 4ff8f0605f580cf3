// Package entity defines data structures used by the web layer of the vto-panel.
package entity

import (
	"math"
	"net"
	"strings"
	"time"

	"github.com/vtolink/vto-panel/util/common"
)

// Msg represents a standard API response message with success status,
// message text, and optional data object.
type Msg struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Obj     any    `json:"obj"`
}

// AllSetting contains all configuration settings for the vto-panel.
type AllSetting struct {
	// Web server settings
	WebListen     string `json:"webListen" form:"webListen"`         // Web server listen IP address
	WebPort       int    `json:"webPort" form:"webPort"`             // Web server port number
	SessionMaxAge int    `json:"sessionMaxAge" form:"sessionMaxAge"` // Session maximum age in minutes
	TimeLocation  string `json:"timeLocation" form:"timeLocation"`   // Time zone location

	// MQTT relay settings
	MqttEnabled    bool   `json:"mqttEnabled" form:"mqttEnabled"`       // Enable the cloud MQTT command relay
	MqttPrivateKey string `json:"mqttPrivateKey" form:"mqttPrivateKey"` // Cloud broker private key (also the client id)
	MqttBroker     string `json:"mqttBroker" form:"mqttBroker"`         // Broker host
	MqttPort       int    `json:"mqttPort" form:"mqttPort"`             // Broker port

	// Background status polling
	StatusPollEnable bool `json:"statusPollEnable" form:"statusPollEnable"` // Poll devices for online state
}

// CheckValid validates the settings before they are persisted.
func (s *AllSetting) CheckValid() error {
	if s.WebListen != "" {
		ip := net.ParseIP(s.WebListen)
		if ip == nil {
			return common.NewError("web listen is not valid ip:", s.WebListen)
		}
	}

	if s.WebPort <= 0 || s.WebPort > math.MaxUint16 {
		return common.NewError("web port is not a valid port:", s.WebPort)
	}

	if s.SessionMaxAge <= 0 {
		return common.NewError("session max age must be positive:", s.SessionMaxAge)
	}

	if s.MqttPort <= 0 || s.MqttPort > math.MaxUint16 {
		return common.NewError("mqtt port is not a valid port:", s.MqttPort)
	}

	if s.MqttEnabled {
		if strings.TrimSpace(s.MqttPrivateKey) == "" {
			return common.NewError("mqtt relay enabled but no private key configured")
		}
		if strings.TrimSpace(s.MqttBroker) == "" {
			return common.NewError("mqtt relay enabled but no broker configured")
		}
	}

	_, err := time.LoadLocation(s.TimeLocation)
	if err != nil {
		return common.NewError("time location not exist:", s.TimeLocation)
	}

	return nil
}
