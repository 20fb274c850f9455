package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relayworks/outreach-backend/internal/app"
	"github.com/relayworks/outreach-backend/internal/config"
	"github.com/relayworks/outreach-backend/internal/db"
	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/service"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ops",
	Short: "Operational one-shot commands for the outreach engine",
	Long: `ops runs individual engine passes by hand: queue polls, reminder
sweeps, bounce and inbound-email ingestion, and stale-lease reclamation.
Each command performs one pass and exits.`,
}

func init() {
	processQueuesCmd.Flags().String("channel", "all", "channel to poll (email, call, linkedin, all)")

	rootCmd.AddCommand(processQueuesCmd)
	rootCmd.AddCommand(sendRemindersCmd)
	rootCmd.AddCommand(processBouncesCmd)
	rootCmd.AddCommand(processInboundCmd)
	rootCmd.AddCommand(reclaimCmd)
	rootCmd.AddCommand(resumeChannelCmd)
	rootCmd.AddCommand(migrateCmd)
}

// setup loads config, connects and wires the application.
func setup() (config.Config, *sql.DB, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, nil, err
	}
	a, err := app.Build(cfg, conn)
	if err != nil {
		conn.Close()
		return cfg, nil, nil, err
	}
	return cfg, conn, a, nil
}

var processQueuesCmd = &cobra.Command{
	Use:   "process-queues",
	Short: "Run one poll pass over the channel queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, a, err := setup()
		if err != nil {
			return err
		}
		defer conn.Close()

		channel, _ := cmd.Flags().GetString("channel")
		var channels []model.Channel
		switch channel {
		case "all":
			channels = []model.Channel{model.ChannelEmail, model.ChannelCall, model.ChannelLinkedIn}
		case "email", "call", "linkedin":
			channels = []model.Channel{model.Channel(channel)}
		default:
			return fmt.Errorf("unknown channel %q", channel)
		}

		ctx := cmd.Context()
		for _, ch := range channels {
			fmt.Printf("Polling %s queue...\n", ch)
			a.Poller(ch).PollOnce(ctx)
		}
		fmt.Println("Done.")
		return nil
	},
}

var sendRemindersCmd = &cobra.Command{
	Use:   "send-reminders",
	Short: "Run one reminder sweep over all tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, a, err := setup()
		if err != nil {
			return err
		}
		defer conn.Close()

		fmt.Println("Sweeping reminder candidates...")
		a.Reminders.Sweep(cmd.Context())
		fmt.Println("Done.")
		return nil
	},
}

var processBouncesCmd = &cobra.Command{
	Use:   "process-bounces",
	Short: "Ingest bounce records from stdin, one JSON object per line",
	Long: `Reads lines of {"company_id": "...", "email": "...", "reason": "..."}
from stdin and applies each bounce: the address joins the tenant's
do-not-contact list, matching leads are flagged and their queued email
work is failed out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, a, err := setup()
		if err != nil {
			return err
		}
		defer conn.Close()

		type bounce struct {
			CompanyID uuid.UUID `json:"company_id"`
			Email     string    `json:"email"`
			Reason    string    `json:"reason"`
		}
		processed, failed := 0, 0
		err = eachLine(cmd.Context(), func(ctx context.Context, line []byte) error {
			var b bounce
			if err := json.Unmarshal(line, &b); err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			if b.CompanyID == uuid.Nil || b.Email == "" {
				return fmt.Errorf("company_id and email are required")
			}
			return a.Inbound.RecordBounce(ctx, b.CompanyID, b.Email, b.Reason)
		}, &processed, &failed)
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d bounces, %d failed.\n", processed, failed)
		if failed > 0 {
			return fmt.Errorf("%d records failed", failed)
		}
		return nil
	},
}

var processInboundCmd = &cobra.Command{
	Use:   "process-inbound-email",
	Short: "Ingest inbound reply emails from stdin, one JSON object per line",
	Long: `Reads lines of {"to": "...", "from": "...", "subject": "...",
"body": "...", "message_id": "..."} from stdin. The to address carries the
plus-addressed thread handle the reply is attributed by.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, a, err := setup()
		if err != nil {
			return err
		}
		defer conn.Close()

		type inbound struct {
			To        string `json:"to"`
			From      string `json:"from"`
			Subject   string `json:"subject"`
			Body      string `json:"body"`
			MessageID string `json:"message_id"`
		}
		processed, failed := 0, 0
		err = eachLine(cmd.Context(), func(ctx context.Context, line []byte) error {
			var m inbound
			if err := json.Unmarshal(line, &m); err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			logID, ok := service.AttributeReply(m.To)
			if !ok {
				return fmt.Errorf("unattributable recipient %q", m.To)
			}
			return a.Inbound.RecordReply(ctx, logID, m.MessageID, m.From, m.Subject, m.Body)
		}, &processed, &failed)
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d replies, %d failed.\n", processed, failed)
		if failed > 0 {
			return fmt.Errorf("%d records failed", failed)
		}
		return nil
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim-stale-leases",
	Short: "Return items stuck in processing to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, conn, a, err := setup()
		if err != nil {
			return err
		}
		defer conn.Close()

		cutoff := time.Now().UTC().Add(-cfg.LeaseTimeout)
		n, err := a.Queue.ReleaseStaleLeases(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Reclaimed %d stale leases.\n", n)
		return nil
	},
}

var resumeChannelCmd = &cobra.Command{
	Use:   "resume-channel <company-id> <channel>",
	Short: "Resume a tenant channel paused after a credential failure",
	Long: `Dispatchers pause a tenant's channel when the provider rejects its
credentials. Once the credentials are fixed, this clears the pause so the
poller picks the tenant up again. LinkedIn normally resumes through the
account-status webhook; passing linkedin here forces it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid company id %q", args[0])
		}
		ch := model.Channel(args[1])
		switch ch {
		case model.ChannelEmail, model.ChannelCall, model.ChannelLinkedIn:
		default:
			return fmt.Errorf("unknown channel %q", args[1])
		}

		_, conn, a, err := setup()
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := a.Companies.SetChannelPaused(cmd.Context(), companyID, ch, false); err != nil {
			return err
		}
		fmt.Printf("Resumed %s channel for company %s.\n", ch, companyID)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})

		conn, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := db.Migrate(conn); err != nil {
			return err
		}
		fmt.Println("Schema up to date.")
		return nil
	},
}

// eachLine feeds stdin lines to fn, counting successes and failures. A bad
// record is reported and skipped rather than aborting the batch.
func eachLine(ctx context.Context, fn func(context.Context, []byte) error, processed, failed *int) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			*failed++
			continue
		}
		*processed++
	}
	return scanner.Err()
}
