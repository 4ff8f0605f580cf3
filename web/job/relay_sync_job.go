package job

import (
	"github.com/vtolink/vto-panel/logger"
	"github.com/vtolink/vto-panel/mqtt"
	"github.com/vtolink/vto-panel/web/service"
)

// RelaySyncJob pushes the current MQTT settings and topic set into the
// relay. The relay ignores pushes that change nothing, so running this on a
// short period is cheap.
type RelaySyncJob struct {
	relay *mqtt.Relay

	settingService service.SettingService
	deviceService  service.DeviceService
}

func NewRelaySyncJob(relay *mqtt.Relay) *RelaySyncJob {
	return &RelaySyncJob{relay: relay}
}

func (j *RelaySyncJob) Run() {
	enabled, err := j.settingService.GetMqttEnabled()
	if err != nil {
		logger.Warning("relay sync: failed to read mqtt enabled flag:", err)
		return
	}
	privateKey, err := j.settingService.GetMqttPrivateKey()
	if err != nil {
		logger.Warning("relay sync: failed to read mqtt private key:", err)
		return
	}
	broker, err := j.settingService.GetMqttBroker()
	if err != nil {
		logger.Warning("relay sync: failed to read mqtt broker:", err)
		return
	}
	port, err := j.settingService.GetMqttPort()
	if err != nil {
		logger.Warning("relay sync: failed to read mqtt port:", err)
		return
	}

	j.relay.Apply(mqtt.Config{
		Enabled:    enabled,
		PrivateKey: privateKey,
		Broker:     broker,
		Port:       port,
	})

	if !enabled {
		return
	}
	topics, err := j.deviceService.GetRelayTopics()
	if err != nil {
		logger.Warning("relay sync: failed to load device topics:", err)
		return
	}
	j.relay.SyncTopics(topics)
}
