package service

import (
	"testing"
	"time"

	"github.com/vtolink/vto-panel/database/model"
)

func TestDeviceValidation(t *testing.T) {
	setup()
	defer teardown()

	service := DeviceService{}

	tests := []struct {
		name   string
		device *model.Device
	}{
		{"empty name", &model.Device{Name: "", Ip: "192.168.1.109"}},
		{"blank name", &model.Device{Name: "   ", Ip: "192.168.1.109"}},
		{"empty ip", &model.Device{Name: "gate", Ip: ""}},
		{"garbage ip", &model.Device{Name: "gate", Ip: "not-an-ip"}},
		{"ipv6 ip", &model.Device{Name: "gate", Ip: "fe80::1"}},
	}
	for _, tc := range tests {
		err := service.AddDevice(tc.device)
		if err == nil {
			t.Errorf("%s: expected error, got none", tc.name)
			continue
		}
		if !IsValidationError(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	count, err := service.CountDevices()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("invalid devices were persisted, count = %d", count)
	}
}

func TestDeviceCredentialDefaults(t *testing.T) {
	setup()
	defer teardown()

	service := DeviceService{}
	device := &model.Device{Name: "gate", Ip: "192.168.1.109"}
	if err := service.AddDevice(device); err != nil {
		t.Fatal(err)
	}

	saved, err := service.GetDevice(device.Id)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Username != "admin" {
		t.Errorf("default username not applied: %q", saved.Username)
	}
	if saved.Password != "admin123" {
		t.Errorf("default password not applied: %q", saved.Password)
	}
}

func TestDeviceTopicUniqueness(t *testing.T) {
	setup()
	defer teardown()

	service := DeviceService{}
	first := &model.Device{Name: "gate", Ip: "192.168.1.109", MqttTopic: "door001"}
	if err := service.AddDevice(first); err != nil {
		t.Fatal(err)
	}

	dup := &model.Device{Name: "back gate", Ip: "192.168.1.110", MqttTopic: "door001"}
	err := service.AddDevice(dup)
	if err == nil {
		t.Fatal("duplicate topic accepted")
	}
	if !IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	// Editing a device must not collide with its own topic.
	first.Name = "front gate"
	if err := service.UpdateDevice(first); err != nil {
		t.Errorf("editing a device rejected its own topic: %v", err)
	}

	// Empty topics never collide.
	second := &model.Device{Name: "side gate", Ip: "192.168.1.111"}
	third := &model.Device{Name: "garage", Ip: "192.168.1.112"}
	if err := service.AddDevice(second); err != nil {
		t.Fatal(err)
	}
	if err := service.AddDevice(third); err != nil {
		t.Errorf("second device without topic rejected: %v", err)
	}
}

func TestDeviceCRUD(t *testing.T) {
	setup()
	defer teardown()

	service := DeviceService{}
	device := &model.Device{
		Name:      "gate",
		GroupName: "building A",
		Ip:        "192.168.1.109",
		Username:  "admin",
		Password:  "secret",
		MqttTopic: "door001",
	}
	if err := service.AddDevice(device); err != nil {
		t.Fatal(err)
	}

	device.Name = "main gate"
	device.MqttTopic = "door002"
	if err := service.UpdateDevice(device); err != nil {
		t.Fatal(err)
	}

	saved, err := service.GetDevice(device.Id)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "main gate" || saved.MqttTopic != "door002" {
		t.Errorf("update not persisted: %+v", saved)
	}

	byTopic, err := service.GetDeviceByTopic("door002")
	if err != nil {
		t.Fatal(err)
	}
	if byTopic.Id != device.Id {
		t.Errorf("lookup by topic returned device %d, expected %d", byTopic.Id, device.Id)
	}

	if err := service.DeleteDevice(device.Id); err != nil {
		t.Fatal(err)
	}
	if _, err := service.GetDevice(device.Id); err == nil {
		t.Error("deleted device still readable")
	}
}

func TestGetRelayTopics(t *testing.T) {
	setup()
	defer teardown()

	service := DeviceService{}
	devices := []*model.Device{
		{Name: "gate", Ip: "192.168.1.109", MqttTopic: "door001"},
		{Name: "back gate", Ip: "192.168.1.110"},
		{Name: "garage", Ip: "192.168.1.111", MqttTopic: "door003"},
	}
	for _, d := range devices {
		if err := service.AddDevice(d); err != nil {
			t.Fatal(err)
		}
	}

	topics, err := service.GetRelayTopics()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %v", topics)
	}
	found := map[string]bool{}
	for _, topic := range topics {
		found[topic] = true
	}
	if !found["door001"] || !found["door003"] {
		t.Errorf("unexpected topic set: %v", topics)
	}
}

func TestSetLastUnlock(t *testing.T) {
	setup()
	defer teardown()

	service := DeviceService{}
	device := &model.Device{Name: "gate", Ip: "192.168.1.109"}
	if err := service.AddDevice(device); err != nil {
		t.Fatal(err)
	}

	saved, err := service.GetDevice(device.Id)
	if err != nil {
		t.Fatal(err)
	}
	if saved.LastUnlockAt != nil {
		t.Errorf("fresh device already has an unlock time: %v", saved.LastUnlockAt)
	}

	now := time.Now()
	if err := service.SetLastUnlock(device.Id, now); err != nil {
		t.Fatal(err)
	}
	saved, err = service.GetDevice(device.Id)
	if err != nil {
		t.Fatal(err)
	}
	if saved.LastUnlockAt == nil {
		t.Fatal("unlock time not recorded")
	}
	if saved.LastUnlockAt.Unix() != now.Unix() {
		t.Errorf("unlock time drifted: %v vs %v", saved.LastUnlockAt, now)
	}
}
