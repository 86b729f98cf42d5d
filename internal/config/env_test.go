package config

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv(EnvSSID, "")
	if got := String(EnvSSID, "Home"); got != "Home" {
		t.Errorf("String() = %q, want default", got)
	}
	t.Setenv(EnvSSID, "Office")
	if got := String(EnvSSID, "Home"); got != "Office" {
		t.Errorf("String() = %q, want Office", got)
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 5000},
		{"8080", 8080},
		{"eighty", 5000},
	}
	for _, tt := range tests {
		t.Setenv(EnvPort, tt.value)
		if got := Int(EnvPort, 5000); got != tt.want {
			t.Errorf("Int(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestDurationAndBool(t *testing.T) {
	t.Setenv("SPLAT_TEST_INTERVAL", "250ms")
	if got := Duration("SPLAT_TEST_INTERVAL", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration() = %v", got)
	}
	t.Setenv("SPLAT_TEST_INTERVAL", "soon")
	if got := Duration("SPLAT_TEST_INTERVAL", time.Second); got != time.Second {
		t.Errorf("Duration() = %v, want default", got)
	}

	t.Setenv("SPLAT_TEST_FLAG", "true")
	if !Bool("SPLAT_TEST_FLAG", false) {
		t.Error("Bool() = false, want true")
	}
	t.Setenv("SPLAT_TEST_FLAG", "maybe")
	if Bool("SPLAT_TEST_FLAG", false) {
		t.Error("Bool() = true, want default")
	}
}
