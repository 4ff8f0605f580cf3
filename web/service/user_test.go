package service

import (
	"testing"
)

func TestDefaultAdminUser(t *testing.T) {
	setup()
	defer teardown()

	service := UserService{}

	user := service.CheckUser("admin", "123456")
	if user == nil {
		t.Fatal("default admin/123456 login rejected on a fresh database")
	}
	if user.Username != "admin" {
		t.Errorf("unexpected username: %q", user.Username)
	}

	if service.CheckUser("admin", "wrong") != nil {
		t.Error("wrong password accepted")
	}
	if service.CheckUser("nobody", "123456") != nil {
		t.Error("unknown user accepted")
	}
}

func TestPasswordIsHashed(t *testing.T) {
	setup()
	defer teardown()

	service := UserService{}
	user, err := service.GetFirstUser()
	if err != nil {
		t.Fatal(err)
	}
	if user.Password == "123456" {
		t.Error("password stored in plain text")
	}
}

func TestUpdatePassword(t *testing.T) {
	setup()
	defer teardown()

	service := UserService{}
	user, err := service.GetFirstUser()
	if err != nil {
		t.Fatal(err)
	}

	if err := service.UpdatePassword(user.Id, ""); err == nil {
		t.Error("empty password accepted")
	}

	if err := service.UpdatePassword(user.Id, "newsecret"); err != nil {
		t.Fatal(err)
	}
	if service.CheckUser("admin", "123456") != nil {
		t.Error("old password still valid after rotation")
	}
	if service.CheckUser("admin", "newsecret") == nil {
		t.Error("new password rejected after rotation")
	}
}

func TestUpdateFirstUser(t *testing.T) {
	setup()
	defer teardown()

	service := UserService{}
	if err := service.UpdateFirstUser("", "pass"); err == nil {
		t.Error("empty username accepted")
	}
	if err := service.UpdateFirstUser("operator", ""); err == nil {
		t.Error("empty password accepted")
	}

	if err := service.UpdateFirstUser("operator", "pass123"); err != nil {
		t.Fatal(err)
	}
	if service.CheckUser("operator", "pass123") == nil {
		t.Error("updated credentials rejected")
	}
	if service.CheckUser("admin", "123456") != nil {
		t.Error("old credentials still valid")
	}
}
