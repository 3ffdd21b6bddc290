package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/byosamah/volteria-sub006/internal/domain"
	"github.com/byosamah/volteria-sub006/internal/repository"
	"github.com/byosamah/volteria-sub006/internal/testutil"
)

// newTestQueue builds a queue over a migrated database with one registered
// site and controller
func newTestQueue(t *testing.T, db *sql.DB) (*Queue, domain.Controller) {
	t.Helper()

	siteRepo := repository.NewSiteRepository(db)
	controllerRepo := repository.NewControllerRepository(db)
	commandRepo := repository.NewCommandRepository(db)
	t.Cleanup(func() { commandRepo.Close() })

	site, err := siteRepo.Save(context.Background(), domain.Site{Name: "test-site"})
	if err != nil {
		t.Fatalf("Failed to create site: %v", err)
	}
	controller, err := controllerRepo.Save(context.Background(), domain.Controller{
		SiteID: site.ID, Name: "ctl-1", SerialNumber: "SN-1",
	})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	return NewQueue(commandRepo, controllerRepo), controller
}

func TestQueue_Enqueue(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_Enqueue")
	defer cleanup()

	queue, controller := newTestQueue(t, db)

	cmd, err := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID,
		Type:         domain.CommandReboot,
		Parameters:   json.RawMessage(`{"graceful": true}`),
		Priority:     5,
		CreatedBy:    "ops@volteria.io",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cmd.ID == "" {
		t.Error("Expected a command ID")
	}
	if cmd.Status != domain.StatusPending {
		t.Errorf("Expected pending, got %s", cmd.Status)
	}
	if cmd.SiteID != controller.SiteID {
		t.Errorf("Expected site ID %d derived from the controller, got %d", controller.SiteID, cmd.SiteID)
	}

	stored, err := queue.Get(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stored.Priority != 5 {
		t.Errorf("Expected priority 5, got %d", stored.Priority)
	}
}

func TestQueue_Enqueue_UnknownController(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_Enqueue_UnknownController")
	defer cleanup()

	queue, _ := newTestQueue(t, db)

	_, err := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: 9999,
		Type:         domain.CommandSyncConfig,
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestQueue_Enqueue_Validation(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_Enqueue_Validation")
	defer cleanup()

	queue, controller := newTestQueue(t, db)

	// Unknown type
	_, err := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID,
		Type:         domain.CommandType("self_destruct"),
	})
	if !errors.Is(err, repository.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for unknown type, got %v", err)
	}

	// Out-of-range parameter
	_, err = queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID,
		Type:         domain.CommandSetPowerLimit,
		Parameters:   json.RawMessage(`{"power_limit_pct": 150}`),
	})
	if !errors.Is(err, repository.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for bad params, got %v", err)
	}

	// Payload on a command that takes none
	_, err = queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID,
		Type:         domain.CommandEmergencyStop,
		Parameters:   json.RawMessage(`{"force": true}`),
	})
	if !errors.Is(err, repository.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for unexpected params, got %v", err)
	}
}

func TestQueue_Enqueue_NoDeduplication(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_Enqueue_NoDeduplication")
	defer cleanup()

	queue, controller := newTestQueue(t, db)

	req := EnqueueRequest{
		ControllerID: controller.ID,
		Type:         domain.CommandSyncConfig,
	}

	first, err := queue.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := queue.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if first.ID == second.ID {
		t.Error("Expected identical requests to enqueue distinct commands")
	}

	pending, err := queue.Poll(context.Background(), controller.ID, domain.StatusPending, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending commands, got %d", len(pending))
	}
}

func TestQueue_Poll(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_Poll")
	defer cleanup()

	queue, controller := newTestQueue(t, db)

	low, _ := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID, Type: domain.CommandSyncConfig, Priority: 1,
	})
	high, _ := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID, Type: domain.CommandReboot, Priority: 9,
	})

	pending, err := queue.Poll(context.Background(), controller.ID, domain.StatusPending, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(pending))
	}
	if pending[0].ID != high.ID || pending[1].ID != low.ID {
		t.Errorf("Expected priority order [%s %s], got [%s %s]", high.ID, low.ID, pending[0].ID, pending[1].ID)
	}

	// Polling reads without acknowledging
	again, _ := queue.Poll(context.Background(), controller.ID, domain.StatusPending, 0)
	if len(again) != 2 {
		t.Errorf("Expected polling to leave commands pending, got %d", len(again))
	}

	// Empty status returns every command
	all, err := queue.Poll(context.Background(), controller.ID, "", 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 commands for empty status, got %d", len(all))
	}

	// Unknown controller and bogus status are rejected
	if _, err := queue.Poll(context.Background(), 9999, domain.StatusPending, 0); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := queue.Poll(context.Background(), controller.ID, domain.CommandStatus("sleeping"), 0); !errors.Is(err, repository.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity, got %v", err)
	}
}

func TestQueue_LifecycleVerbs(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_LifecycleVerbs")
	defer cleanup()

	queue, controller := newTestQueue(t, db)

	cmd, _ := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID, Type: domain.CommandSetDGReserve,
		Parameters: json.RawMessage(`{"dg_reserve_kw": 15}`),
	})

	acked, err := queue.Ack(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if acked.Status != domain.StatusAcknowledged {
		t.Errorf("Expected acknowledged, got %s", acked.Status)
	}

	started, err := queue.Start(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if started.Status != domain.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", started.Status)
	}

	completed, err := queue.Complete(context.Background(), cmd.ID, json.RawMessage(`{"applied": true}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Errorf("Expected completed, got %s", completed.Status)
	}
	if string(completed.Result) != `{"applied": true}` {
		t.Errorf("Unexpected result: %s", completed.Result)
	}

	// Terminal commands reject further writes
	if _, err := queue.Expire(context.Background(), cmd.ID, "too late"); !errors.Is(err, repository.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestQueue_FailAndExpire(t *testing.T) {
	db, cleanup := testutil.SetupTestDBWithMigrations(t, "TestQueue_FailAndExpire")
	defer cleanup()

	queue, controller := newTestQueue(t, db)

	failing, _ := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID, Type: domain.CommandSyncConfig,
	})
	failed, err := queue.Fail(context.Background(), failing.ID, "config fetch returned 500", nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if failed.Status != domain.StatusFailed {
		t.Errorf("Expected failed, got %s", failed.Status)
	}
	if failed.ErrorMessage != "config fetch returned 500" {
		t.Errorf("Unexpected error message: %s", failed.ErrorMessage)
	}

	expiring, _ := queue.Enqueue(context.Background(), EnqueueRequest{
		ControllerID: controller.ID, Type: domain.CommandSyncConfig,
	})
	expired, err := queue.Expire(context.Background(), expiring.ID, "timeout waiting for command completion")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if expired.Status != domain.StatusTimeout {
		t.Errorf("Expected timeout, got %s", expired.Status)
	}
	if expired.ExecutedAt == nil {
		t.Error("Expected executed_at on an expired command")
	}
}
