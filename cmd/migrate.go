package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/db"
	"github.com/spf13/cobra"
)

// migrateCmd replays migrations/001_init.sql wholesale. The script drops
// and recreates every table, so this is a dev/CI bootstrap, not a
// production migration tool.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Recreate the schema from migrations/ (destructive, dev only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		schemaPath := filepath.Join("migrations", "001_init.sql")
		schema, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", schemaPath, err)
		}

		// FK checks are suspended so a partially applied schema can be
		// reset regardless of drop order.
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if _, err := sqlDB.Exec(string(schema)); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("apply %s: %w", schemaPath, err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}

		log.Printf(">> schema applied from %s", schemaPath)
		return nil
	},
}
