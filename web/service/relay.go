package service

import (
	"github.com/vtolink/vto-panel/logger"
)

// RelayService bridges relay commands to the device registry. It
// implements mqtt.CommandHandler.
type RelayService struct {
	deviceService DeviceService
	statusService StatusService
	bemfaService  BemfaSyncService
}

// Unlock resolves the topic to its device and triggers the unlock.
func (s *RelayService) Unlock(topic string) (string, bool) {
	device, err := s.deviceService.GetDeviceByTopic(topic)
	if err != nil {
		logger.Warning("relay: no device bound to topic", topic)
		return "no device bound to topic " + topic, false
	}
	result := s.deviceService.Unlock(device)
	if result.Success {
		s.bemfaService.PushUnlockStatus(device)
	}
	return result.Msg, result.Success
}

// Status probes the device bound to topic and records the observation.
func (s *RelayService) Status(topic string) (online, known bool) {
	device, err := s.deviceService.GetDeviceByTopic(topic)
	if err != nil {
		return false, false
	}
	status := s.deviceService.QueryStatus(device)
	s.statusService.SetOnline(device.Id, status.Online)
	return status.Online, true
}
