package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// AuditLog is both sides of the audit trail.
type AuditLog interface {
	audit.Recorder
	audit.Querier
}

// BuildAuditLog opens the audit trail. AUDIT_BACKEND=postgres writes to the
// booking_audit_events table through database/sql on the pgx driver.
func BuildAuditLog(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (AuditLog, func(), error) {
	if cfg.AuditBackend != "postgres" {
		return audit.NewMemoryLog(), func() {}, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, func() {}, fmt.Errorf("bootstrap: postgres audit requires DATABASE_URL")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, func() {}, fmt.Errorf("bootstrap: ping audit db: %w", err)
	}
	logger.Info("using postgres audit log")
	return audit.NewService(db), func() { _ = db.Close() }, nil
}

// BuildArchiver returns the S3 day exporter, disabled when no bucket is set.
func BuildArchiver(cfg *appconfig.Config, source audit.Querier, awsCfg *aws.Config, logger *logging.Logger) *audit.Archiver {
	if cfg.AuditArchiveBucket == "" || awsCfg == nil {
		return audit.NewArchiver(source, nil, "", cfg.AuditArchivePrefix, logger)
	}
	return audit.NewArchiver(source, s3.NewFromConfig(*awsCfg), cfg.AuditArchiveBucket, cfg.AuditArchivePrefix, logger)
}
