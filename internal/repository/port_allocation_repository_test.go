package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/testutil"
)

func TestPortAllocationRepository_Allocate(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_Allocate")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	first, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})
	second, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-2", SerialNumber: "SN-2",
	})

	alloc, already, err := repo.Allocate(context.Background(), first.ID, 2230, 2299)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if already {
		t.Error("Expected a fresh allocation")
	}
	if alloc.Port != 2230 {
		t.Errorf("Expected lowest port 2230, got %d", alloc.Port)
	}

	next, already, err := repo.Allocate(context.Background(), second.ID, 2230, 2299)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if already {
		t.Error("Expected a fresh allocation")
	}
	if next.Port != 2231 {
		t.Errorf("Expected next port 2231, got %d", next.Port)
	}
}

func TestPortAllocationRepository_Allocate_Idempotent(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_Allocate_Idempotent")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	alloc, already, err := repo.Allocate(context.Background(), controller.ID, 2230, 2299)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if already {
		t.Error("Expected a fresh allocation")
	}

	repeat, already, err := repo.Allocate(context.Background(), controller.ID, 2230, 2299)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !already {
		t.Error("Expected the repeat request to report an existing allocation")
	}
	if repeat.Port != alloc.Port {
		t.Errorf("Expected the same port %d, got %d", alloc.Port, repeat.Port)
	}
}

func TestPortAllocationRepository_Allocate_PoolExhausted(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_Allocate_PoolExhausted")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})

	// Fill a three port range
	for i := 0; i < 3; i++ {
		controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
			SiteID: site.ID, Name: fmt.Sprintf("ctl-%d", i), SerialNumber: fmt.Sprintf("SN-%d", i),
		})
		_, _, err := repo.Allocate(context.Background(), controller.ID, 2230, 2232)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	extra, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-extra", SerialNumber: "SN-extra",
	})
	_, _, err := repo.Allocate(context.Background(), extra.ID, 2230, 2232)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Expected ErrPoolExhausted, got %v", err)
	}
}

func TestPortAllocationRepository_Allocate_UnknownController(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_Allocate_UnknownController")
	defer cleanup()

	repo := NewPortAllocationRepository(db)

	_, _, err := repo.Allocate(context.Background(), 9999, 2230, 2299)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPortAllocationRepository_ReleaseThenReallocate(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_ReleaseThenReallocate")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	var controllers []domain.Controller
	for i := 0; i < 3; i++ {
		c, _ := controllerRepo.Save(context.Background(), domain.Controller{
			SiteID: site.ID, Name: fmt.Sprintf("ctl-%d", i), SerialNumber: fmt.Sprintf("SN-%d", i),
		})
		controllers = append(controllers, c)
		_, _, _ = repo.Allocate(context.Background(), c.ID, 2230, 2299)
	}

	// Free the middle port; the next allocation takes the gap, not the end
	if err := repo.Release(context.Background(), controllers[1].ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	newcomer, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-new", SerialNumber: "SN-new",
	})
	alloc, _, err := repo.Allocate(context.Background(), newcomer.ID, 2230, 2299)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if alloc.Port != 2231 {
		t.Errorf("Expected freed port 2231 to be reused, got %d", alloc.Port)
	}
}

func TestPortAllocationRepository_Release_NotFound(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_Release_NotFound")
	defer cleanup()

	repo := NewPortAllocationRepository(db)

	err := repo.Release(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPortAllocationRepository_FindByControllerID(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_FindByControllerID")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	_, err := repo.FindByControllerID(context.Background(), controller.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound before allocation, got %v", err)
	}

	alloc, _, _ := repo.Allocate(context.Background(), controller.ID, 2230, 2299)

	found, err := repo.FindByControllerID(context.Background(), controller.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if found.Port != alloc.Port {
		t.Errorf("Expected port %d, got %d", alloc.Port, found.Port)
	}
	if found.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestPortAllocationRepository_ListAll(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestPortAllocationRepository_ListAll")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	for i := 0; i < 3; i++ {
		c, _ := controllerRepo.Save(context.Background(), domain.Controller{
			SiteID: site.ID, Name: fmt.Sprintf("ctl-%d", i), SerialNumber: fmt.Sprintf("SN-%d", i),
		})
		_, _, _ = repo.Allocate(context.Background(), c.ID, 2230, 2299)
	}

	allocations, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(allocations) != 3 {
		t.Fatalf("Expected 3 allocations, got %d", len(allocations))
	}
	for i, want := range []int{2230, 2231, 2232} {
		if allocations[i].Port != want {
			t.Errorf("Position %d: expected port %d, got %d", i, want, allocations[i].Port)
		}
	}
}

func TestPortAllocationRepository_Allocate_Concurrent(t *testing.T) {
	db := testutil.SetupTestFileDB(t)

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewPortAllocationRepository(db)

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})

	const workers = 20
	ids := make([]int64, workers)
	for i := 0; i < workers; i++ {
		c, err := controllerRepo.Save(context.Background(), domain.Controller{
			SiteID: site.ID, Name: fmt.Sprintf("ctl-%d", i), SerialNumber: fmt.Sprintf("SN-%d", i),
		})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		ids[i] = c.ID
	}

	// All controllers request a port at once; each must end up with a
	// distinct one
	var wg sync.WaitGroup
	ports := make(chan int, workers)
	for _, id := range ids {
		wg.Add(1)
		go func(controllerID int64) {
			defer wg.Done()
			alloc, _, err := repo.Allocate(context.Background(), controllerID, 2230, 2230+workers-1)
			if err != nil {
				t.Errorf("Allocate failed for controller %d: %v", controllerID, err)
				return
			}
			ports <- alloc.Port
		}(id)
	}
	wg.Wait()
	close(ports)

	seen := make(map[int]bool)
	count := 0
	for port := range ports {
		if seen[port] {
			t.Errorf("Port %d was allocated twice", port)
		}
		seen[port] = true
		count++
		if port < 2230 || port > 2230+workers-1 {
			t.Errorf("Port %d is outside the configured range", port)
		}
	}
	if count != workers {
		t.Errorf("Expected %d allocations, got %d", workers, count)
	}
}
