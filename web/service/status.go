package service

import (
	"sync"
)

// In-memory online/offline knowledge about devices, fed by the status poll
// job and relay status queries. Shared by all StatusService values.
var (
	statusMu     sync.RWMutex
	deviceOnline = map[int]bool{}
)

type StatusService struct{}

func (s *StatusService) SetOnline(deviceId int, online bool) {
	statusMu.Lock()
	deviceOnline[deviceId] = online
	statusMu.Unlock()
}

// IsOnline reports the last observed state; known is false when the device
// has never been probed.
func (s *StatusService) IsOnline(deviceId int) (online, known bool) {
	statusMu.RLock()
	defer statusMu.RUnlock()
	online, known = deviceOnline[deviceId]
	return online, known
}

// Counts tallies the given devices into online and offline buckets.
// Devices that were never probed count as offline.
func (s *StatusService) Counts(deviceIds []int) (online, offline int) {
	statusMu.RLock()
	defer statusMu.RUnlock()
	for _, id := range deviceIds {
		if deviceOnline[id] {
			online++
		} else {
			offline++
		}
	}
	return online, offline
}

// Forget drops state for a deleted device.
func (s *StatusService) Forget(deviceId int) {
	statusMu.Lock()
	delete(deviceOnline, deviceId)
	statusMu.Unlock()
}
