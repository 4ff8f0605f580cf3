package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/vtolink/vto-panel/database"
	"github.com/vtolink/vto-panel/database/model"
	"github.com/vtolink/vto-panel/logger"
	"github.com/vtolink/vto-panel/vto"
	"github.com/vtolink/vto-panel/web/global"
)

// unlockBudget bounds a whole unlock operation including the internal
// retry, so a request against an unreachable device never hangs past it.
const unlockBudget = 10 * time.Second

const (
	defaultVendorUsername = "admin"
	defaultVendorPassword = "admin123"
)

// ValidationError marks bad user input, as opposed to storage faults.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func newValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

// IsValidationError reports whether err stems from invalid input.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type DeviceService struct{}

func (s *DeviceService) GetDevices() ([]*model.Device, error) {
	db := database.GetDB()
	devices := make([]*model.Device, 0)
	err := db.Model(model.Device{}).Order("id asc").Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (s *DeviceService) GetDevice(id int) (*model.Device, error) {
	db := database.GetDB()
	device := &model.Device{}
	err := db.Model(model.Device{}).Where("id = ?", id).First(device).Error
	if err != nil {
		return nil, err
	}
	return device, nil
}

func (s *DeviceService) GetDeviceByTopic(topic string) (*model.Device, error) {
	db := database.GetDB()
	device := &model.Device{}
	err := db.Model(model.Device{}).Where("mqtt_topic = ?", topic).First(device).Error
	if err != nil {
		return nil, err
	}
	return device, nil
}

// GetRelayTopics returns the bound topics of all devices, the subscription
// set of the MQTT relay.
func (s *DeviceService) GetRelayTopics() ([]string, error) {
	db := database.GetDB()
	topics := make([]string, 0)
	err := db.Model(model.Device{}).
		Where("mqtt_topic <> ''").
		Pluck("mqtt_topic", &topics).
		Error
	if err != nil {
		return nil, err
	}
	return topics, nil
}

// checkDevice validates user input and topic uniqueness. The id of d is
// excluded from the uniqueness check so editing a device keeps its topic.
func (s *DeviceService) checkDevice(d *model.Device) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Ip = strings.TrimSpace(d.Ip)
	d.MqttTopic = strings.TrimSpace(d.MqttTopic)

	if d.Name == "" {
		return newValidationError("device name can not be empty")
	}
	ip := net.ParseIP(d.Ip)
	if ip == nil || ip.To4() == nil {
		return newValidationError("device ip is not a valid IPv4 address: " + d.Ip)
	}
	if d.Username == "" {
		d.Username = defaultVendorUsername
	}
	if d.Password == "" {
		d.Password = defaultVendorPassword
	}

	if d.MqttTopic != "" {
		db := database.GetDB()
		var count int64
		err := db.Model(model.Device{}).
			Where("mqtt_topic = ? AND id <> ?", d.MqttTopic, d.Id).
			Count(&count).
			Error
		if err != nil {
			return err
		}
		if count > 0 {
			return newValidationError("mqtt topic already in use: " + d.MqttTopic)
		}
	}
	return nil
}

func (s *DeviceService) AddDevice(d *model.Device) error {
	if err := s.checkDevice(d); err != nil {
		return err
	}
	db := database.GetDB()
	return db.Create(d).Error
}

func (s *DeviceService) UpdateDevice(d *model.Device) error {
	if err := s.checkDevice(d); err != nil {
		return err
	}
	db := database.GetDB()
	return db.Model(model.Device{}).
		Where("id = ?", d.Id).
		Updates(map[string]any{
			"name":       d.Name,
			"group_name": d.GroupName,
			"ip":         d.Ip,
			"username":   d.Username,
			"password":   d.Password,
			"mqtt_topic": d.MqttTopic,
		}).
		Error
}

func (s *DeviceService) DeleteDevice(id int) error {
	db := database.GetDB()
	return db.Delete(model.Device{}, id).Error
}

func (s *DeviceService) CountDevices() (int64, error) {
	db := database.GetDB()
	var count int64
	err := db.Model(model.Device{}).Count(&count).Error
	return count, err
}

// SetLastUnlock records a successful unlock timestamp.
func (s *DeviceService) SetLastUnlock(id int, t time.Time) error {
	db := database.GetDB()
	return db.Model(model.Device{}).
		Where("id = ?", id).
		Update("last_unlock_at", t).
		Error
}

// baseContext parents device calls on the server lifetime context, so a
// shutdown aborts in-flight vendor requests.
func baseContext() context.Context {
	if server := global.GetWebServer(); server != nil {
		return server.GetCtx()
	}
	return context.Background()
}

// Unlock runs the vendor unlock flow for the device and bumps
// LastUnlockAt on success. It never returns an error; failures are carried
// in the result message. Devices are independent, so concurrent unlocks of
// different devices never serialize on each other.
func (s *DeviceService) Unlock(device *model.Device) vto.Result {
	ctx, cancel := context.WithTimeout(baseContext(), unlockBudget)
	defer cancel()

	client := vto.NewClient(device.Ip, device.Username, device.Password)
	result := client.Unlock(ctx)
	if result.Success {
		if err := s.SetLastUnlock(device.Id, time.Now()); err != nil {
			logger.Warning("failed to record unlock time for device", device.Id, err)
		}
		logger.Infof("device %q (%s) unlocked", device.Name, device.Ip)
	} else {
		logger.Warningf("device %q (%s) unlock failed: %s", device.Name, device.Ip, result.Msg)
	}
	return result
}

// QueryStatus probes the device, best effort.
func (s *DeviceService) QueryStatus(device *model.Device) vto.Status {
	ctx, cancel := context.WithTimeout(baseContext(), unlockBudget)
	defer cancel()

	client := vto.NewClient(device.Ip, device.Username, device.Password)
	return client.QueryStatus(ctx)
}
