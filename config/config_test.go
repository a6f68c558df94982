package config

import (
	"testing"
	"time"
)

func TestParseTenantList(t *testing.T) {
	ids, err := parseTenantList(" 1, 7 ,,42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 7 || ids[2] != 42 {
		t.Errorf("ids = %v, want [1 7 42]", ids)
	}

	if _, err := parseTenantList("1,abc"); err == nil {
		t.Error("expected error for non-numeric tenant id")
	}

	empty, err := parseTenantList("")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty list = %v, %v", empty, err)
	}
}

func TestMapsEnabled(t *testing.T) {
	m := MapsConfig{APIKey: "k", EnabledTenants: []int64{3}}
	if !m.Enabled(3) {
		t.Error("tenant 3 should be enabled")
	}
	if m.Enabled(4) {
		t.Error("tenant 4 should not be enabled")
	}
	m.APIKey = ""
	if m.Enabled(3) {
		t.Error("missing API key must disable every tenant")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHED_AUTO_ASSIGN_WORKERS", "0")
	t.Setenv("MAPS_ENABLED_TENANTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduling.DefaultPickupTime != "09:00" {
		t.Errorf("DefaultPickupTime = %q", cfg.Scheduling.DefaultPickupTime)
	}
	if cfg.Scheduling.NominalTripDuration != time.Hour {
		t.Errorf("NominalTripDuration = %v", cfg.Scheduling.NominalTripDuration)
	}
	if cfg.Scheduling.AutoAssignWorkers != 1 {
		t.Errorf("AutoAssignWorkers = %d, want clamp to 1", cfg.Scheduling.AutoAssignWorkers)
	}
	if len(cfg.Maps.EnabledTenants) != 1 || cfg.Maps.EnabledTenants[0] != 5 {
		t.Errorf("EnabledTenants = %v", cfg.Maps.EnabledTenants)
	}
}
