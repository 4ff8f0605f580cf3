package job

import (
	"sync"

	"github.com/vtolink/vto-panel/logger"
	"github.com/vtolink/vto-panel/web/service"
)

// CheckDeviceStatusJob probes every device and records its reachability
// for the dashboard. The poll setting is read on every run, so the job is
// always scheduled and the settings toggle takes effect immediately.
type CheckDeviceStatusJob struct {
	settingService service.SettingService
	deviceService  service.DeviceService
	statusService  service.StatusService
}

func NewCheckDeviceStatusJob() *CheckDeviceStatusJob {
	return new(CheckDeviceStatusJob)
}

func (j *CheckDeviceStatusJob) Run() {
	enabled, err := j.settingService.GetStatusPollEnable()
	if err != nil {
		logger.Warning("status poll: failed to read setting:", err)
		return
	}
	if !enabled {
		return
	}

	devices, err := j.deviceService.GetDevices()
	if err != nil {
		logger.Warning("status poll: failed to load devices:", err)
		return
	}

	var wg sync.WaitGroup
	for _, device := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := j.deviceService.QueryStatus(device)
			j.statusService.SetOnline(device.Id, status.Online)
		}()
	}
	wg.Wait()
}
