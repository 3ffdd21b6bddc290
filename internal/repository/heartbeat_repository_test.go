package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/testutil"
)

func TestHeartbeatRepository_Record(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHeartbeatRepository_Record")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewHeartbeatRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	hb := domain.Heartbeat{
		ControllerID:    controller.ID,
		Timestamp:       time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		CPUUsagePct:     41.5,
		MemoryUsagePct:  62.0,
		DiskUsagePct:    71.3,
		UptimeSeconds:   86400,
		FirmwareVersion: "2.4.1",
		Metadata:        map[string]any{"cpu_temp_celsius": 58.2},
	}

	saved, err := repo.Record(context.Background(), hb)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if saved.ID == 0 {
		t.Error("Expected ID to be assigned")
	}

	latest, err := repo.LatestByController(context.Background(), controller.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if latest.CPUUsagePct != 41.5 {
		t.Errorf("Expected CPU 41.5, got %f", latest.CPUUsagePct)
	}
	if !latest.Timestamp.Equal(hb.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", hb.Timestamp, latest.Timestamp)
	}
	if temp, ok := latest.Metadata["cpu_temp_celsius"].(float64); !ok || temp != 58.2 {
		t.Errorf("Expected metadata cpu_temp_celsius 58.2, got %v", latest.Metadata["cpu_temp_celsius"])
	}
}

func TestHeartbeatRepository_Record_DefaultsTimestamp(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHeartbeatRepository_Record_DefaultsTimestamp")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewHeartbeatRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	before := time.Now().UTC()
	saved, err := repo.Record(context.Background(), domain.Heartbeat{ControllerID: controller.ID})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	after := time.Now().UTC()

	if saved.Timestamp.Before(before) || saved.Timestamp.After(after) {
		t.Errorf("Expected server-filled timestamp between %v and %v, got %v", before, after, saved.Timestamp)
	}
}

func TestHeartbeatRepository_Record_RequiresController(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHeartbeatRepository_Record_RequiresController")
	defer cleanup()

	repo := NewHeartbeatRepository(db)
	defer repo.Close()

	_, err := repo.Record(context.Background(), domain.Heartbeat{})
	if err == nil {
		t.Error("Expected error for missing controller ID")
	}
}

func TestHeartbeatRepository_LatestByController_UsesReportedTime(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHeartbeatRepository_LatestByController_UsesReportedTime")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewHeartbeatRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	// A delayed snapshot arrives after a newer one; the newer reported
	// timestamp must still win
	newer := time.Date(2026, 8, 20, 12, 5, 0, 0, time.UTC)
	older := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	_, _ = repo.Record(context.Background(), domain.Heartbeat{
		ControllerID: controller.ID, Timestamp: newer, UptimeSeconds: 500,
	})
	_, _ = repo.Record(context.Background(), domain.Heartbeat{
		ControllerID: controller.ID, Timestamp: older, UptimeSeconds: 200,
	})

	latest, err := repo.LatestByController(context.Background(), controller.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !latest.Timestamp.Equal(newer) {
		t.Errorf("Expected latest timestamp %v, got %v", newer, latest.Timestamp)
	}
	if latest.UptimeSeconds != 500 {
		t.Errorf("Expected the newer snapshot's uptime 500, got %d", latest.UptimeSeconds)
	}
}

func TestHeartbeatRepository_LatestByController_NotFound(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHeartbeatRepository_LatestByController_NotFound")
	defer cleanup()

	repo := NewHeartbeatRepository(db)
	defer repo.Close()

	_, err := repo.LatestByController(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHeartbeatRepository_ListByController(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestHeartbeatRepository_ListByController")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewHeartbeatRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, _ = repo.Record(context.Background(), domain.Heartbeat{
			ControllerID: controller.ID,
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, err := repo.ListByController(context.Background(), controller.ID, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 heartbeats, got %d", len(all))
	}
	// Newest first
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Errorf("Expected descending timestamps, got %v before %v", all[i-1].Timestamp, all[i].Timestamp)
		}
	}

	limited, err := repo.ListByController(context.Background(), controller.ID, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("Expected 2 heartbeats, got %d", len(limited))
	}
	if !limited[0].Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("Expected newest heartbeat first, got %v", limited[0].Timestamp)
	}
}
