// Package model defines the persistent entities of the vto-panel:
// panel users, VTO door stations and the key/value settings table.
package model

import (
	"time"
)

type User struct {
	Id        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Username  string    `json:"username" gorm:"unique"`
	Password  string    `json:"-"` // bcrypt hash
	CreatedAt time.Time `json:"createdAt"`
}

// Device is a single VTO door station reachable over its HTTP control API.
// MqttTopic binds the device to a cloud broker topic for remote unlock;
// it must be unique across devices when set, enforced at write time.
type Device struct {
	Id           int        `json:"id" form:"id" gorm:"primaryKey;autoIncrement"`
	Name         string     `json:"name" form:"name"`
	GroupName    string     `json:"group" form:"group"`
	Ip           string     `json:"ip" form:"ip"`
	Username     string     `json:"username" form:"username"`
	Password     string     `json:"password" form:"password"`
	MqttTopic    string     `json:"mqttTopic" form:"mqttTopic"`
	LastUnlockAt *time.Time `json:"lastUnlockAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Setting struct {
	Id    int    `json:"id" form:"id" gorm:"primaryKey;autoIncrement"`
	Key   string `json:"key" form:"key"`
	Value string `json:"value" form:"value"`
}
