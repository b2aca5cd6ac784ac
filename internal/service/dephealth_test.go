// dephealth_test.go - unit-тесты построения URL зависимостей.
package service

import (
	"testing"
)

// TestMySQLURL проверяет URL MySQL для меток dephealth.
func TestMySQLURL(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		db       string
		expected string
	}{
		{
			name:     "обычный хост",
			host:     "mysql",
			port:     3306,
			db:       "mpd_concursos",
			expected: "mysql://mysql:3306/mpd_concursos",
		},
		{
			name:     "IPv6 в квадратных скобках",
			host:     "::1",
			port:     3307,
			db:       "test",
			expected: "mysql://[::1]:3307/test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mysqlURL(tt.host, tt.port, tt.db); got != tt.expected {
				t.Errorf("mysqlURL() = %q, ожидалось %q", got, tt.expected)
			}
		})
	}
}

// TestBackendHealthPath проверяет путь проверки backend.
func TestBackendHealthPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "URL с /api", input: "http://backend:8080/api", want: "/api"},
		{name: "URL без пути", input: "https://backend.mpd.gov.ar", want: "/"},
		{name: "пустой URL", input: "", wantErr: true},
		{name: "без схемы", input: "backend:8080", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := backendHealthPath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("backendHealthPath(%q): ожидалась ошибка, получено %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("backendHealthPath(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("backendHealthPath(%q) = %q, ожидалось %q", tt.input, got, tt.want)
			}
		})
	}
}
