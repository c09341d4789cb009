package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wolfman30/sobrecupos-ai/internal/app/bootstrap"
	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	"github.com/wolfman30/sobrecupos-ai/internal/validate"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

func buildApp(ctx context.Context) (*bootstrap.App, *appconfig.Config, error) {
	cfg := appconfig.Load()
	app, err := bootstrap.Build(ctx, cfg, nil, logging.NewWithWriter(logLevel, os.Stderr))
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the booking engine from the terminal",
	Long: `Talk to the booking engine from the terminal, one message per line.
Backends come from the same environment as the API server.

Examples:
  sobrecupoctl chat
  DATASTORE_BACKEND=postgres sobrecupoctl chat --session demo-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = "cli-" + uuid.NewString()[:8]
		}
		app, _, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		return runChat(cmd.Context(), app.Engine, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id to use (default: random)")
}

func runChat(ctx context.Context, engine *conversation.Engine, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "sesión %s (escribe \"salir\" para terminar)\n", sessionID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "salir" {
			return nil
		}
		resp, err := engine.HandleMessage(ctx, conversation.Inbound{SessionID: sessionID, Text: text, Channel: "cli"})
		if resp == nil {
			return err
		}
		fmt.Fprintln(out, resp.Text)
		for _, o := range resp.Options {
			fmt.Fprintf(out, "  %d) %s\n", o.Index, o.Label)
		}
		if resp.Payment != nil {
			fmt.Fprintf(out, "  %s: %s\n", resp.Payment.Label, resp.Payment.URL)
		}
		fmt.Fprintf(out, "  [%s]\n", resp.Stage)
	}
}

// --- rut ---

var rutCmd = &cobra.Command{
	Use:   "rut <rut>",
	Short: "Validate and format a Chilean RUT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !validate.IsValidRUT(args[0]) {
			if hint := validate.ExplainLikelyMistake(args[0], validate.KindRUT); hint != "" {
				fmt.Fprintln(out, hint)
			}
			return fmt.Errorf("invalid RUT")
		}
		fmt.Fprintln(out, validate.FormatRUT(args[0]))
		return nil
	},
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo doctors and sobrecupos into Postgres",
	Long: `Load demo doctors and sobrecupos into Postgres, dated from today.
Run cmd/migrate first. Already-present slots are left untouched.

Examples:
  DATABASE_URL=postgres://localhost/sobrecupos sobrecupoctl seed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appconfig.Load()
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			loc = time.UTC
		}
		pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pool.Close()

		doctors, records := appointments.DemoData(time.Now().In(loc))
		if err := appointments.NewPostgresDatastore(pool).Seed(cmd.Context(), doctors, records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d doctors and %d sobrecupos\n", len(doctors), len(records))
		return nil
	},
}

// --- audit ---

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and archive the booking audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print audit events as JSON, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		eventType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		app, _, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		events, err := app.Audit.Query(cmd.Context(), audit.Filter{SessionID: sessionID, Type: audit.EventType(eventType), Limit: limit})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive one day of audit events to S3 as JSON lines",
	Long: `Archive one day of audit events to S3 as JSON lines.
Requires AUDIT_BACKEND=postgres and AUDIT_ARCHIVE_BUCKET.

Examples:
  sobrecupoctl audit export                    # yesterday
  sobrecupoctl audit export --date 2025-10-14`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateStr, _ := cmd.Flags().GetString("date")

		app, _, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		day, err := exportDay(dateStr, time.Now().In(app.Location), app.Location)
		if err != nil {
			return err
		}
		key, n, err := app.Archiver.ExportDay(cmd.Context(), day)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d events to %s\n", n, key)
		return nil
	},
}

// exportDay parses --date, defaulting to the day before now.
func exportDay(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return now.AddDate(0, 0, -1), nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

func init() {
	auditListCmd.Flags().String("session", "", "only events for this session id")
	auditListCmd.Flags().String("type", "", "only events of this type, e.g. payment.completed")
	auditListCmd.Flags().Int("limit", 50, "maximum number of events")
	auditExportCmd.Flags().String("date", "", "day to export, YYYY-MM-DD (default: yesterday)")
	auditCmd.AddCommand(auditListCmd, auditExportCmd)
}
