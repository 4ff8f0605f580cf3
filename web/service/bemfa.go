package service

import (
	"context"
	"strings"

	"github.com/vtolink/vto-panel/bemfa"
	"github.com/vtolink/vto-panel/database/model"
	"github.com/vtolink/vto-panel/logger"
)

// relayTopicPrefix marks topics this panel owns on the cloud side. Only
// topics with this prefix are deleted during a sync, so topics registered
// by other tools under the same account survive.
const relayTopicPrefix = "vto"

// SyncResult summarizes a cloud topic sync run.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// topicAction is one planned cloud API call.
type topicAction struct {
	kind  string // "create", "rename" or "delete"
	topic string
	name  string
}

// BemfaSyncService reconciles the cloud topic registry with the device
// table and pushes unlock state notifications.
type BemfaSyncService struct {
	settingService SettingService
	deviceService  DeviceService

	api *bemfa.Client
}

func (s *BemfaSyncService) client() *bemfa.Client {
	if s.api == nil {
		s.api = bemfa.NewClient()
	}
	return s.api
}

// SyncDevices makes the cloud topic registry match the device table:
// missing topics are created, display names follow device names, and stale
// panel-owned topics are removed.
func (s *BemfaSyncService) SyncDevices(ctx context.Context) (*SyncResult, error) {
	key, err := s.settingService.GetMqttPrivateKey()
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, newValidationError("mqtt private key is not configured")
	}

	devices, err := s.deviceService.GetDevices()
	if err != nil {
		return nil, err
	}
	existing, err := s.client().AllTopics(ctx, key)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for _, action := range planTopicSync(existing, devices) {
		var err error
		switch action.kind {
		case "create":
			if err = s.client().CreateTopic(ctx, key, action.topic, action.name); err == nil {
				result.Created++
			}
		case "rename":
			if err = s.client().ModifyTopicName(ctx, key, action.topic, action.name); err == nil {
				result.Updated++
			}
		case "delete":
			if err = s.client().DeleteTopic(ctx, key, action.topic); err == nil {
				result.Deleted++
			}
		}
		if err != nil {
			logger.Warningf("bemfa sync: %s %s failed: %v", action.kind, action.topic, err)
			result.Failed++
		}
	}

	result.Total = result.Created + result.Updated + result.Deleted + result.Failed
	logger.Infof("bemfa sync: %d created, %d updated, %d deleted, %d failed",
		result.Created, result.Updated, result.Deleted, result.Failed)
	return result, nil
}

// planTopicSync diffs the cloud registry against the device table.
func planTopicSync(existing []bemfa.Topic, devices []*model.Device) []topicAction {
	cloud := make(map[string]string, len(existing))
	for _, t := range existing {
		cloud[t.Topic] = t.Name
	}

	actions := make([]topicAction, 0)
	bound := make(map[string]struct{})
	for _, d := range devices {
		if d.MqttTopic == "" {
			continue
		}
		bound[d.MqttTopic] = struct{}{}
		name, ok := cloud[d.MqttTopic]
		if !ok {
			actions = append(actions, topicAction{kind: "create", topic: d.MqttTopic, name: d.Name})
		} else if name != d.Name {
			actions = append(actions, topicAction{kind: "rename", topic: d.MqttTopic, name: d.Name})
		}
	}

	for _, t := range existing {
		if _, ok := bound[t.Topic]; ok {
			continue
		}
		if strings.HasPrefix(t.Topic, relayTopicPrefix) {
			actions = append(actions, topicAction{kind: "delete", topic: t.Topic})
		}
	}
	return actions
}

// PushUnlockStatus reports a successful unlock to the cloud so subscribed
// dashboards flip to closed and the account owner gets a WeChat
// notification. Best effort; the unlock already succeeded.
func (s *BemfaSyncService) PushUnlockStatus(device *model.Device) {
	if device.MqttTopic == "" {
		return
	}
	key, err := s.settingService.GetMqttPrivateKey()
	if err != nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unlockBudget)
	defer cancel()

	wemsg := "设备 " + device.Name + " 开锁成功，当前状态：关闭"
	if err := s.client().SendStatusMessage(ctx, key, device.MqttTopic, "off", wemsg); err != nil {
		logger.Warning("bemfa status pushback failed for topic", device.MqttTopic, err)
	}
}
