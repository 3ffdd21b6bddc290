package migrations

import (
	"database/sql"
)

// GetPerformanceMigrations returns performance optimization migrations
func GetPerformanceMigrations() []Migration {
	return []Migration{
		{
			Version: 10,
			Name:    "add_performance_indices",
			Up: func(tx *sql.Tx) error {
				// Add indices for better query performance
				indices := []string{
					"CREATE INDEX IF NOT EXISTS idx_controllers_name ON controllers(name)",
					"CREATE INDEX IF NOT EXISTS idx_controllers_serial_number ON controllers(serial_number)",
					"CREATE INDEX IF NOT EXISTS idx_sites_name ON sites(name)",
					"CREATE INDEX IF NOT EXISTS idx_commands_status ON commands(status)",
					"CREATE INDEX IF NOT EXISTS idx_commands_created_at ON commands(created_at)",
					"CREATE INDEX IF NOT EXISTS idx_heartbeats_timestamp ON heartbeats(timestamp)",
					"CREATE INDEX IF NOT EXISTS idx_port_allocations_port ON port_allocations(port)",
				}

				for _, indexSQL := range indices {
					if _, err := tx.Exec(indexSQL); err != nil {
						return err
					}
				}

				return nil
			},
			Down: func(tx *sql.Tx) error {
				// Drop performance indices
				indices := []string{
					"DROP INDEX IF EXISTS idx_controllers_name",
					"DROP INDEX IF EXISTS idx_controllers_serial_number",
					"DROP INDEX IF EXISTS idx_sites_name",
					"DROP INDEX IF EXISTS idx_commands_status",
					"DROP INDEX IF EXISTS idx_commands_created_at",
					"DROP INDEX IF EXISTS idx_heartbeats_timestamp",
					"DROP INDEX IF EXISTS idx_port_allocations_port",
				}

				for _, dropSQL := range indices {
					if _, err := tx.Exec(dropSQL); err != nil {
						return err
					}
				}

				return nil
			},
		},
	}
}
