package migrations

import (
	"database/sql"
)

// GetInitialMigrations returns all initial migrations
func GetInitialMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_registry_tables",
			Up: func(tx *sql.Tx) error {
				// Create sites table
				_, err := tx.Exec(`
					CREATE TABLE sites (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						name TEXT NOT NULL UNIQUE,
						location TEXT NOT NULL DEFAULT '',
						description TEXT NOT NULL DEFAULT '',
						created_at TEXT NOT NULL,
						updated_at TEXT NOT NULL
					)
				`)
				if err != nil {
					return err
				}

				// Create controllers table
				_, err = tx.Exec(`
					CREATE TABLE controllers (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						site_id INTEGER NOT NULL,
						name TEXT NOT NULL UNIQUE,
						serial_number TEXT NOT NULL UNIQUE,
						firmware_version TEXT NOT NULL DEFAULT '',
						last_config_sync_at TEXT,
						created_at TEXT NOT NULL,
						updated_at TEXT NOT NULL,
						FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`CREATE INDEX idx_controllers_site_id ON controllers(site_id)`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				// Drop tables in reverse order due to foreign key constraints
				_, err := tx.Exec(`DROP TABLE IF EXISTS controllers`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`DROP TABLE IF EXISTS sites`)
				return err
			},
		},
		{
			Version: 2,
			Name:    "create_commands_table",
			Up: func(tx *sql.Tx) error {
				// Timestamps are fixed-width UTC text so string order matches
				// time order; the dispatch queries sort on them directly.
				_, err := tx.Exec(`
					CREATE TABLE commands (
						id TEXT PRIMARY KEY,
						site_id INTEGER NOT NULL,
						controller_id INTEGER NOT NULL,
						command_type TEXT NOT NULL,
						parameters TEXT NOT NULL DEFAULT '{}',
						status TEXT NOT NULL DEFAULT 'pending',
						priority INTEGER NOT NULL DEFAULT 0,
						created_by TEXT NOT NULL DEFAULT '',
						created_at TEXT NOT NULL,
						executed_at TEXT,
						result TEXT,
						error_message TEXT NOT NULL DEFAULT '',
						FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE,
						FOREIGN KEY (controller_id) REFERENCES controllers(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`CREATE INDEX idx_commands_controller_status ON commands(controller_id, status)`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`CREATE INDEX idx_commands_site_id ON commands(site_id)`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS commands`)
				return err
			},
		},
		{
			Version: 3,
			Name:    "create_heartbeats_table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE heartbeats (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						controller_id INTEGER NOT NULL,
						timestamp TEXT NOT NULL,
						cpu_usage_pct REAL NOT NULL DEFAULT 0,
						memory_usage_pct REAL NOT NULL DEFAULT 0,
						disk_usage_pct REAL NOT NULL DEFAULT 0,
						uptime_seconds INTEGER NOT NULL DEFAULT 0,
						firmware_version TEXT NOT NULL DEFAULT '',
						metadata TEXT NOT NULL DEFAULT '{}',
						FOREIGN KEY (controller_id) REFERENCES controllers(id) ON DELETE CASCADE
					)
				`)
				if err != nil {
					return err
				}

				_, err = tx.Exec(`CREATE INDEX idx_heartbeats_controller_timestamp ON heartbeats(controller_id, timestamp)`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS heartbeats`)
				return err
			},
		},
		{
			Version: 4,
			Name:    "create_port_allocations_table",
			Up: func(tx *sql.Tx) error {
				// The two UNIQUE constraints are the allocator's critical
				// section: one port per controller, one controller per port.
				_, err := tx.Exec(`
					CREATE TABLE port_allocations (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						controller_id INTEGER NOT NULL UNIQUE,
						port INTEGER NOT NULL UNIQUE,
						created_at TEXT NOT NULL,
						FOREIGN KEY (controller_id) REFERENCES controllers(id) ON DELETE CASCADE
					)
				`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`DROP TABLE IF EXISTS port_allocations`)
				return err
			},
		},
	}
}
