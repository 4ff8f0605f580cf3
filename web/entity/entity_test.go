package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSetting() AllSetting {
	return AllSetting{
		WebListen:      "",
		WebPort:        8998,
		SessionMaxAge:  60,
		TimeLocation:   "Asia/Shanghai",
		MqttEnabled:    false,
		MqttPrivateKey: "",
		MqttBroker:     "bemfa.com",
		MqttPort:       9501,
	}
}

func TestCheckValid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AllSetting)
		ok     bool
	}{
		{"defaults", func(s *AllSetting) {}, true},
		{"explicit listen ip", func(s *AllSetting) { s.WebListen = "127.0.0.1" }, true},
		{"bad listen ip", func(s *AllSetting) { s.WebListen = "localhost" }, false},
		{"zero web port", func(s *AllSetting) { s.WebPort = 0 }, false},
		{"web port too large", func(s *AllSetting) { s.WebPort = 65536 }, false},
		{"zero session age", func(s *AllSetting) { s.SessionMaxAge = 0 }, false},
		{"zero mqtt port", func(s *AllSetting) { s.MqttPort = 0 }, false},
		{"mqtt enabled with key", func(s *AllSetting) {
			s.MqttEnabled = true
			s.MqttPrivateKey = "abc123"
		}, true},
		{"mqtt enabled without key", func(s *AllSetting) { s.MqttEnabled = true }, false},
		{"mqtt enabled blank key", func(s *AllSetting) {
			s.MqttEnabled = true
			s.MqttPrivateKey = "   "
		}, false},
		{"mqtt enabled without broker", func(s *AllSetting) {
			s.MqttEnabled = true
			s.MqttPrivateKey = "abc123"
			s.MqttBroker = ""
		}, false},
		{"bad time location", func(s *AllSetting) { s.TimeLocation = "Nowhere/Here" }, false},
		{"utc location", func(s *AllSetting) { s.TimeLocation = "UTC" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validSetting()
			tc.mutate(&s)
			err := s.CheckValid()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMsgSerialization(t *testing.T) {
	data, err := json.Marshal(Msg{Success: true, Msg: "unlocked"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"msg":"unlocked","obj":null}`, string(data))
}
