package utils

import "testing"

func TestEnvOrDefault(t *testing.T) {
	const key = "ALKANES_TEST_ENV_OR_DEFAULT"
	clearEnvCache(key)
	if v := EnvOrDefault(key, "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %q", v)
	}
	t.Setenv(key, "value")
	clearEnvCache(key)
	if v := EnvOrDefault(key, "fallback"); v != "value" {
		t.Fatalf("expected value, got %q", v)
	}
}

func TestEnvOrDefaultUint64(t *testing.T) {
	const key = "ALKANES_TEST_ENV_UINT64"
	clearEnvCache(key)
	if v := EnvOrDefaultUint64(key, 42); v != 42 {
		t.Fatalf("expected fallback 42, got %d", v)
	}
	t.Setenv(key, "7")
	clearEnvCache(key)
	if v := EnvOrDefaultUint64(key, 42); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	const key = "ALKANES_TEST_ENV_BOOL"
	clearEnvCache(key)
	if v := EnvOrDefaultBool(key, true); v != true {
		t.Fatalf("expected fallback true, got %v", v)
	}
	t.Setenv(key, "false")
	clearEnvCache(key)
	if v := EnvOrDefaultBool(key, true); v != false {
		t.Fatalf("expected false, got %v", v)
	}
}
