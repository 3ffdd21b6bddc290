package domain

import "time"

// Site represents one solar+generator installation managed by the product
type Site struct {
	ID          int64     // Unique identifier
	Name        string    // Site name (e.g., "lagos-warehouse-3")
	Location    string    // Free-form location description
	Description string    // Optional description
	CreatedAt   time.Time // When the site was registered
	UpdatedAt   time.Time // When the site was last updated
}

// Controller represents the embedded edge controller serving a site.
// Controllers have no public address and only intermittent connectivity;
// all interaction happens through the command and heartbeat stores.
type Controller struct {
	ID               int64      // Unique identifier
	SiteID           int64      // Foreign key to Site
	Name             string     // Controller name (e.g., "ctl-lagos-wh3")
	SerialNumber     string     // Hardware serial, unique per device
	FirmwareVersion  string     // Last known firmware version
	LastConfigSyncAt *time.Time // Set after a successful sync_config completes
	CreatedAt        time.Time  // When the controller was registered
	UpdatedAt        time.Time  // When the controller was last updated
}

// Heartbeat is a periodic liveness-plus-telemetry snapshot reported by a
// controller. Heartbeats are append-only; liveness derives from the most
// recent snapshot by its own timestamp, never by arrival order.
type Heartbeat struct {
	ID              int64          // Unique identifier
	ControllerID    int64          // Foreign key to Controller
	Timestamp       time.Time      // Controller-reported capture time
	CPUUsagePct     float64        // CPU usage percentage
	MemoryUsagePct  float64        // Memory usage percentage
	DiskUsagePct    float64        // Disk usage percentage
	UptimeSeconds   int64          // Seconds since the controller booted
	FirmwareVersion string         // Firmware version at capture time
	Metadata        map[string]any // Open extension map (e.g., cpu_temp_celsius)
}

// PortAllocation binds one reverse-tunnel TCP port to one controller.
// The port on the central server is forwarded to the controller's local
// SSH daemon. Once assigned, a controller keeps its port until an
// explicit release.
type PortAllocation struct {
	ID           int64     // Unique identifier
	ControllerID int64     // Foreign key to Controller, at most one allocation each
	Port         int       // TCP port within the configured range
	CreatedAt    time.Time // When the port was allocated
}
