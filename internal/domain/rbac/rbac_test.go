package rbac

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ROLE_ADMIN", RoleAdmin},
		{"admin", RoleAdmin},
		{" role_user ", RoleUser},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}
}

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{"пустой набор", nil, ""},
		{"только user", []string{"ROLE_USER"}, RoleUser},
		{"admin и user", []string{"user", "ROLE_ADMIN"}, RoleAdmin},
		{"неизвестные роли игнорируются", []string{"offline_access", "ROLE_USER"}, RoleUser},
		{"только неизвестные", []string{"uma_authorization"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HighestRole(tt.roles); got != tt.want {
				t.Errorf("HighestRole(%v) = %q, ожидается %q", tt.roles, got, tt.want)
			}
		})
	}
}

func TestHasAnyRole(t *testing.T) {
	admins := []string{"ROLE_ADMIN"}

	if !HasAnyRole([]string{"admin"}, admins) {
		t.Error("admin без префикса должен совпадать с ROLE_ADMIN")
	}
	if HasAnyRole([]string{"ROLE_USER"}, admins) {
		t.Error("ROLE_USER не должен давать права администратора")
	}
	if HasAnyRole(nil, admins) {
		t.Error("пустой набор ролей не должен давать права")
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleAdmin) || !IsValidRole(RoleUser) {
		t.Error("ROLE_ADMIN и ROLE_USER должны быть допустимы")
	}
	if IsValidRole("ROLE_ROOT") {
		t.Error("ROLE_ROOT не должна быть допустима")
	}
}
