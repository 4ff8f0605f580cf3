package service

import (
	"strconv"
	"time"

	"github.com/vtolink/vto-panel/database"
	"github.com/vtolink/vto-panel/database/model"
	"github.com/vtolink/vto-panel/util/common"
	"github.com/vtolink/vto-panel/util/random"
	"github.com/vtolink/vto-panel/web/entity"
)

var defaultValueMap = map[string]string{
	"webListen":        "",
	"webPort":          "8998",
	"secret":           random.Seq(32),
	"sessionMaxAge":    "60",
	"timeLocation":     "Asia/Shanghai",
	"mqttEnabled":      "false",
	"mqttPrivateKey":   "",
	"mqttBroker":       "bemfa.com",
	"mqttPort":         "9501",
	"statusPollEnable": "true",
}

type SettingService struct{}

func (s *SettingService) GetAllSetting() (*entity.AllSetting, error) {
	allSetting := &entity.AllSetting{}
	var err error

	if allSetting.WebListen, err = s.GetListen(); err != nil {
		return nil, err
	}
	if allSetting.WebPort, err = s.GetPort(); err != nil {
		return nil, err
	}
	if allSetting.SessionMaxAge, err = s.GetSessionMaxAge(); err != nil {
		return nil, err
	}
	if allSetting.TimeLocation, err = s.getString("timeLocation"); err != nil {
		return nil, err
	}
	if allSetting.MqttEnabled, err = s.GetMqttEnabled(); err != nil {
		return nil, err
	}
	if allSetting.MqttPrivateKey, err = s.GetMqttPrivateKey(); err != nil {
		return nil, err
	}
	if allSetting.MqttBroker, err = s.GetMqttBroker(); err != nil {
		return nil, err
	}
	if allSetting.MqttPort, err = s.GetMqttPort(); err != nil {
		return nil, err
	}
	if allSetting.StatusPollEnable, err = s.GetStatusPollEnable(); err != nil {
		return nil, err
	}

	return allSetting, nil
}

// UpdateAllSetting persists every field of the settings form.
func (s *SettingService) UpdateAllSetting(allSetting *entity.AllSetting) error {
	if err := allSetting.CheckValid(); err != nil {
		return err
	}

	return common.Combine(
		s.setString("webListen", allSetting.WebListen),
		s.setInt("webPort", allSetting.WebPort),
		s.setInt("sessionMaxAge", allSetting.SessionMaxAge),
		s.setString("timeLocation", allSetting.TimeLocation),
		s.setBool("mqttEnabled", allSetting.MqttEnabled),
		s.setString("mqttPrivateKey", allSetting.MqttPrivateKey),
		s.setString("mqttBroker", allSetting.MqttBroker),
		s.setInt("mqttPort", allSetting.MqttPort),
		s.setBool("statusPollEnable", allSetting.StatusPollEnable),
	)
}

func (s *SettingService) ResetSettings() error {
	db := database.GetDB()
	return db.Where("1 = 1").Delete(model.Setting{}).Error
}

func (s *SettingService) getSetting(key string) (*model.Setting, error) {
	db := database.GetDB()
	setting := &model.Setting{}
	err := db.Model(model.Setting{}).Where("key = ?", key).First(setting).Error
	if err != nil {
		return nil, err
	}
	return setting, nil
}

func (s *SettingService) saveSetting(key string, value string) error {
	setting, err := s.getSetting(key)
	db := database.GetDB()
	if database.IsNotFound(err) {
		return db.Create(&model.Setting{
			Key:   key,
			Value: value,
		}).Error
	} else if err != nil {
		return err
	}
	setting.Key = key
	setting.Value = value
	return db.Save(setting).Error
}

func (s *SettingService) getString(key string) (string, error) {
	setting, err := s.getSetting(key)
	if database.IsNotFound(err) {
		value, ok := defaultValueMap[key]
		if !ok {
			return "", common.NewErrorf("key <%v> not in defaultValueMap", key)
		}
		return value, nil
	} else if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *SettingService) setString(key string, value string) error {
	return s.saveSetting(key, value)
}

func (s *SettingService) getBool(key string) (bool, error) {
	str, err := s.getString(key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(str)
}

func (s *SettingService) setBool(key string, value bool) error {
	return s.setString(key, strconv.FormatBool(value))
}

func (s *SettingService) getInt(key string) (int, error) {
	str, err := s.getString(key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(str)
}

func (s *SettingService) setInt(key string, value int) error {
	return s.setString(key, strconv.Itoa(value))
}

func (s *SettingService) GetListen() (string, error) {
	return s.getString("webListen")
}

func (s *SettingService) SetListen(ip string) error {
	return s.setString("webListen", ip)
}

func (s *SettingService) GetPort() (int, error) {
	return s.getInt("webPort")
}

func (s *SettingService) SetPort(port int) error {
	return s.setInt("webPort", port)
}

// GetSecret returns the cookie-signing secret, persisting the generated
// default on first use so sessions survive restarts.
func (s *SettingService) GetSecret() ([]byte, error) {
	_, err := s.getSetting("secret")
	if database.IsNotFound(err) {
		if err := s.saveSetting("secret", defaultValueMap["secret"]); err != nil {
			return nil, err
		}
	}
	secret, err := s.getString("secret")
	if err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

func (s *SettingService) GetSessionMaxAge() (int, error) {
	return s.getInt("sessionMaxAge")
}

func (s *SettingService) GetTimeLocation() (*time.Location, error) {
	l, err := s.getString("timeLocation")
	if err != nil {
		return nil, err
	}
	location, err := time.LoadLocation(l)
	if err != nil {
		defaultLocation := defaultValueMap["timeLocation"]
		location, err = time.LoadLocation(defaultLocation)
	}
	return location, err
}

func (s *SettingService) GetMqttEnabled() (bool, error) {
	return s.getBool("mqttEnabled")
}

func (s *SettingService) SetMqttEnabled(value bool) error {
	return s.setBool("mqttEnabled", value)
}

func (s *SettingService) GetMqttPrivateKey() (string, error) {
	return s.getString("mqttPrivateKey")
}

func (s *SettingService) SetMqttPrivateKey(key string) error {
	return s.setString("mqttPrivateKey", key)
}

func (s *SettingService) GetMqttBroker() (string, error) {
	return s.getString("mqttBroker")
}

func (s *SettingService) GetMqttPort() (int, error) {
	return s.getInt("mqttPort")
}

func (s *SettingService) GetStatusPollEnable() (bool, error) {
	return s.getBool("statusPollEnable")
}

func (s *SettingService) SetStatusPollEnable(value bool) error {
	return s.setBool("statusPollEnable", value)
}
