package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// BuildDatastore returns the appointment datastore wrapped in the stale-read
// cache, and a closer for any pool it opened.
func BuildDatastore(ctx context.Context, cfg *appconfig.Config, loc *time.Location, logger *logging.Logger) (*appointments.CachingDatastore, func(), error) {
	var (
		backend appointments.Datastore
		closer  = func() {}
	)
	switch cfg.DatastoreBackend {
	case "airtable", "http":
		if cfg.AirtableAPIKey == "" || cfg.AirtableBaseID == "" {
			return nil, closer, fmt.Errorf("bootstrap: airtable datastore requires AIRTABLE_API_KEY and AIRTABLE_BASE_ID")
		}
		backend = appointments.NewHTTPDatastore(appointments.HTTPConfig{
			BaseURL:          cfg.AirtableBaseURL,
			APIKey:           cfg.AirtableAPIKey,
			BaseID:           cfg.AirtableBaseID,
			SlotsTable:       cfg.AirtableTable,
			DoctorsTable:     cfg.AirtableDoctorsTable,
			PatientsTable:    cfg.AirtablePatientsTable,
			OptimizedTimeout: cfg.DatastoreTimeout,
		}, logger)
		logger.Info("using airtable datastore", "base_id", cfg.AirtableBaseID, "table", cfg.AirtableTable)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, closer, fmt.Errorf("bootstrap: postgres datastore requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, closer, fmt.Errorf("bootstrap: open pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, closer, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		backend = appointments.NewPostgresDatastore(pool)
		closer = pool.Close
		logger.Info("using postgres datastore")
	default:
		doctors, records := appointments.DemoData(time.Now().In(loc))
		backend = appointments.NewMemoryDatastore(doctors, records)
		logger.Warn("using in-memory demo datastore", "records", len(records))
	}
	return appointments.NewCachingDatastore(backend, logger), closer, nil
}
