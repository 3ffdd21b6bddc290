package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/testutil"
)

func TestCommandRepository_Create(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_Create")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	cmd := domain.Command{
		ID:           uuid.NewString(),
		SiteID:       site.ID,
		ControllerID: controller.ID,
		Type:         domain.CommandSetPowerLimit,
		Parameters:   json.RawMessage(`{"power_limit_pct": 80}`),
		Priority:     3,
		CreatedBy:    "ops@volteria.io",
	}

	created, err := repo.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Errorf("Expected status pending, got %s", created.Status)
	}
	if created.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	found, err := repo.FindByID(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if found.Type != domain.CommandSetPowerLimit {
		t.Errorf("Expected type set_power_limit, got %s", found.Type)
	}
	if found.Priority != 3 {
		t.Errorf("Expected priority 3, got %d", found.Priority)
	}
	if string(found.Parameters) != `{"power_limit_pct": 80}` {
		t.Errorf("Unexpected parameters: %s", found.Parameters)
	}
	if found.ExecutedAt != nil {
		t.Error("Expected no executed_at on a fresh command")
	}
}

func TestCommandRepository_Create_Validation(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_Create_Validation")
	defer cleanup()

	repo := NewCommandRepository(db)
	defer repo.Close()

	_, err := repo.Create(context.Background(), domain.Command{
		SiteID: 1, ControllerID: 1, Type: domain.CommandReboot,
	})
	if err == nil {
		t.Error("Expected error for missing command ID")
	}

	_, err = repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: 1, ControllerID: 1, Type: domain.CommandType("bogus"),
	})
	if !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for unknown type, got %v", err)
	}

	_, err = repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), ControllerID: 1, Type: domain.CommandReboot,
	})
	if err == nil {
		t.Error("Expected error for missing site ID")
	}
}

func TestCommandRepository_FindByID_NotFound(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_FindByID_NotFound")
	defer cleanup()

	repo := NewCommandRepository(db)
	defer repo.Close()

	_, err := repo.FindByID(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCommandRepository_DispatchOrder(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_DispatchOrder")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	// Insertion order: low priority first, then two mid, then high
	ids := make([]string, 4)
	for i, priority := range []int{0, 5, 5, 10} {
		cmd := domain.Command{
			ID:           uuid.NewString(),
			SiteID:       site.ID,
			ControllerID: controller.ID,
			Type:         domain.CommandSyncConfig,
			Priority:     priority,
		}
		created, err := repo.Create(context.Background(), cmd)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		ids[i] = created.ID
	}

	pending, err := repo.FindByControllerAndStatus(context.Background(), controller.ID, domain.StatusPending, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("Expected 4 pending commands, got %d", len(pending))
	}

	// Highest priority first, equal priorities oldest first
	want := []string{ids[3], ids[1], ids[2], ids[0]}
	for i, cmd := range pending {
		if cmd.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], cmd.ID)
		}
	}

	// Limit trims from the front of the same ordering
	limited, err := repo.FindByControllerAndStatus(context.Background(), controller.ID, domain.StatusPending, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(limited))
	}
	if limited[0].ID != ids[3] || limited[1].ID != ids[1] {
		t.Errorf("Unexpected limited order: [%s %s]", limited[0].ID, limited[1].ID)
	}
}

func TestCommandRepository_Transition_Lifecycle(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_Transition_Lifecycle")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	created, _ := repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: site.ID, ControllerID: controller.ID, Type: domain.CommandReboot,
	})

	acked, err := repo.Transition(context.Background(), created.ID, domain.StatusAcknowledged, nil, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if acked.Status != domain.StatusAcknowledged {
		t.Errorf("Expected acknowledged, got %s", acked.Status)
	}
	if acked.ExecutedAt != nil {
		t.Error("Expected no executed_at before a terminal status")
	}

	_, err = repo.Transition(context.Background(), created.ID, domain.StatusInProgress, nil, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	result := json.RawMessage(`{"rebooted": true, "duration_seconds": 42}`)
	completed, err := repo.Transition(context.Background(), created.ID, domain.StatusCompleted, result, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	if completed.ExecutedAt == nil {
		t.Error("Expected executed_at on a terminal status")
	}
	if string(completed.Result) != string(result) {
		t.Errorf("Expected result %s, got %s", result, completed.Result)
	}
}

func TestCommandRepository_Transition_Illegal(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_Transition_Illegal")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	created, _ := repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: site.ID, ControllerID: controller.ID, Type: domain.CommandEmergencyStop,
	})

	_, _ = repo.Transition(context.Background(), created.ID, domain.StatusInProgress, nil, "")

	// Backward move
	_, err := repo.Transition(context.Background(), created.ID, domain.StatusAcknowledged, nil, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for backward move, got %v", err)
	}

	// Terminal states absorb every later write
	_, err = repo.Transition(context.Background(), created.ID, domain.StatusTimeout, nil, "deadline exceeded")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_, err = repo.Transition(context.Background(), created.ID, domain.StatusCompleted, json.RawMessage(`{}`), "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition out of timeout, got %v", err)
	}

	// The stored row still reports the first terminal outcome
	found, _ := repo.FindByID(context.Background(), created.ID)
	if found.Status != domain.StatusTimeout {
		t.Errorf("Expected status timeout, got %s", found.Status)
	}
	if found.ErrorMessage != "deadline exceeded" {
		t.Errorf("Expected error message to survive, got '%s'", found.ErrorMessage)
	}

	// Unknown command
	_, err = repo.Transition(context.Background(), uuid.NewString(), domain.StatusCompleted, nil, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCommandRepository_Transition_ConcurrentWriters(t *testing.T) {
	db := testutil.SetupTestFileDB(t)

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	created, _ := repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: site.ID, ControllerID: controller.ID, Type: domain.CommandSyncConfig,
	})

	// Many writers race the same command to different terminal states;
	// exactly one may win
	terminals := []domain.CommandStatus{
		domain.StatusCompleted, domain.StatusFailed, domain.StatusTimeout,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusTimeout,
		domain.StatusCompleted, domain.StatusFailed,
	}

	var wg sync.WaitGroup
	successes := make(chan domain.CommandStatus, len(terminals))
	for _, to := range terminals {
		wg.Add(1)
		go func(to domain.CommandStatus) {
			defer wg.Done()
			if _, err := repo.Transition(context.Background(), created.ID, to, nil, ""); err == nil {
				successes <- to
			} else if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition for losers, got %v", err)
			}
		}(to)
	}
	wg.Wait()
	close(successes)

	var winners []domain.CommandStatus
	for s := range successes {
		winners = append(winners, s)
	}
	if len(winners) != 1 {
		t.Fatalf("Expected exactly one winning transition, got %d (%v)", len(winners), winners)
	}

	found, err := repo.FindByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if found.Status != winners[0] {
		t.Errorf("Expected stored status %s, got %s", winners[0], found.Status)
	}
}

func TestCommandRepository_CountByStatus(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_CountByStatus")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})

	for i := 0; i < 3; i++ {
		_, _ = repo.Create(context.Background(), domain.Command{
			ID: uuid.NewString(), SiteID: site.ID, ControllerID: controller.ID, Type: domain.CommandSyncConfig,
		})
	}
	done, _ := repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: site.ID, ControllerID: controller.ID, Type: domain.CommandReboot,
	})
	_, _ = repo.Transition(context.Background(), done.ID, domain.StatusCompleted, nil, "")

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if counts[domain.StatusPending] != 3 {
		t.Errorf("Expected 3 pending, got %d", counts[domain.StatusPending])
	}
	if counts[domain.StatusCompleted] != 1 {
		t.Errorf("Expected 1 completed, got %d", counts[domain.StatusCompleted])
	}
}

func TestCommandRepository_FindBySiteID(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestCommandRepository_FindBySiteID")
	defer cleanup()

	siteRepo := NewSiteRepository(db)
	controllerRepo := NewControllerRepository(db)
	repo := NewCommandRepository(db)
	defer repo.Close()

	site, _ := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	other, _ := siteRepo.Save(context.Background(), domain.Site{Name: "other-site"})
	controller, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})
	otherController, _ := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: other.ID, Name: "ctl-2", SerialNumber: "SN-2",
	})

	_, _ = repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: site.ID, ControllerID: controller.ID, Type: domain.CommandSyncConfig,
	})
	_, _ = repo.Create(context.Background(), domain.Command{
		ID: uuid.NewString(), SiteID: other.ID, ControllerID: otherController.ID, Type: domain.CommandSyncConfig,
	})

	commands, err := repo.FindBySiteID(context.Background(), site.ID, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("Expected 1 command, got %d", len(commands))
	}
	if commands[0].SiteID != site.ID {
		t.Errorf("Expected site ID %d, got %d", site.ID, commands[0].SiteID)
	}
}
