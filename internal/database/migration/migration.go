// Package migration bootstraps the documents schema on first start.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"docvault/internal/logging"
)

type migrationStep struct {
	Name string
	SQL  string
}

// Steps are idempotent so a run interrupted halfway can simply be repeated.
var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id                 UUID        PRIMARY KEY,
  owner_id           TEXT        NOT NULL,
  title              TEXT        NOT NULL,
  description        TEXT        NOT NULL DEFAULT '',
  folder_name        TEXT        NOT NULL DEFAULT '',
  tags               JSONB       NOT NULL DEFAULT '[]'::jsonb,
  original_file_name TEXT        NOT NULL,
  storage_key        TEXT        NOT NULL UNIQUE,
  size_bytes         BIGINT      NOT NULL CHECK (size_bytes >= 0),
  mime_type          TEXT        NOT NULL,
  category           TEXT        NOT NULL CHECK (category IN ('transcript', 'certificate', 'graduation', 'award', 'other')),
  content_digest     TEXT        NOT NULL,
  status             TEXT        NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'deleted')),
  download_count     BIGINT      NOT NULL DEFAULT 0,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_documents_owner_listing",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_owner_status_created ON documents (owner_id, status, created_at DESC);`,
	},
	{
		Name: "create_index_documents_content_digest",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_content_digest ON documents (content_digest);`,
	},
}

// EnsureMigrated applies every schema step. The sentinel check only decides
// whether the run is reported as a fresh install or a re-check.
func EnsureMigrated(ctx context.Context, db *sql.DB, l logrus.FieldLogger, dbHost string) error {
	start := time.Now()
	log := logging.Component(l, "database").WithField("db_host", dbHost)

	log.WithField("event", "db_migration_check").Info("checking schema")

	var exists bool
	query := "SELECT to_regclass('public.documents') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.WithFields(logrus.Fields{
			"event":       "db_migration_failed",
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Error("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	log.WithFields(logrus.Fields{
		"event":        "db_migration_start",
		"table_exists": exists,
	}).Info("applying schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"event":            "db_migration_failed",
				"migration_step":   step.Name,
				"error":            err.Error(),
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			}).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.WithFields(logrus.Fields{
			"event":            "db_migration_step",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	log.WithFields(logrus.Fields{
		"event":        "db_migration_success",
		"steps":        len(steps),
		"table_exists": exists,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("schema up to date")

	return nil
}
