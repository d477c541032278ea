// rentctl is the operator CLI: it runs the daily jobs by hand, enqueues them
// onto the worker, prints statements and the aging report, and ensures the
// ledger indexes. All commands read the same environment as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ugacribs/rentpay/internal/cache"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/db"
	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/tasks"
	"github.com/ugacribs/rentpay/internal/utils"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "rentctl",
		Short: "RentPay operations tool",
	}

	rootCmd.AddCommand(
		billingCmd(),
		enqueueCmd(),
		agingCmd(),
		statementCmd(),
		indexesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runEnv bundles the connections every command needs.
type runEnv struct {
	cfg    *config.Config
	client *mongo.Client
	db     *mongo.Database
}

func connect() (*runEnv, error) {
	cfg, err := config.Load("cli")
	if err != nil {
		return nil, err
	}
	client, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		return nil, err
	}
	return &runEnv{cfg: cfg, client: client, db: database}, nil
}

func (e *runEnv) close() {
	_ = db.DisconnectDB(e.client)
}

func (e *runEnv) billingRuns() services.IBillingRunService {
	ledger := services.NewLedgerService(e.db)
	settings := services.NewSettingsService(e.db, e.cfg, nil)
	return services.NewBillingRunService(e.cfg, ledger, settings)
}

// parseDate reads a --date/--as-of style flag, defaulting to today in UTC.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}

func printReport(report *services.RunReport) {
	fmt.Printf("Run date:   %s\n", report.RunDate.Format("2006-01-02"))
	fmt.Printf("Total:      %d\n", report.Total)
	fmt.Printf("Successful: %d\n", report.Successful)
	fmt.Printf("Skipped:    %d\n", report.Skipped)
	fmt.Printf("Failed:     %d\n", report.Failed)
	for leaseID, msg := range report.Errors {
		fmt.Printf("  lease %s: %s\n", leaseID, msg)
	}
}

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Run the daily billing jobs directly",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Post rent charges for a run date (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			runDate, err := parseDate(date)
			if err != nil {
				return err
			}

			env, err := connect()
			if err != nil {
				return err
			}
			defer env.close()

			report, err := env.billingRuns().RunRecurringBilling(context.Background(), runDate)
			if err != nil {
				return fmt.Errorf("billing run failed: %w", err)
			}
			printReport(report)
			return nil
		},
	}
	runCmd.Flags().String("date", "", "Run date (YYYY-MM-DD), defaults to today")

	lateCmd := &cobra.Command{
		Use:   "latefees",
		Short: "Assess late fees for a run date (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			runDate, err := parseDate(date)
			if err != nil {
				return err
			}

			env, err := connect()
			if err != nil {
				return err
			}
			defer env.close()

			report, err := env.billingRuns().RunLateFees(context.Background(), runDate)
			if err != nil {
				return fmt.Errorf("late fee run failed: %w", err)
			}
			printReport(report)
			return nil
		},
	}
	lateCmd.Flags().String("date", "", "Run date (YYYY-MM-DD), defaults to today")

	cmd.AddCommand(runCmd, lateCmd)
	return cmd
}

func enqueueCmd() *cobra.Command {
	taskTypes := map[string]string{
		"billing-run":       tasks.TypeRecurringBilling,
		"latefee-run":       tasks.TypeLateFeeRun,
		"rent-reminder":     tasks.TypeRentReminder,
		"payment-poll":      tasks.TypePaymentPoll,
		"statement-archive": tasks.TypeStatementArchive,
	}

	cmd := &cobra.Command{
		Use:   "enqueue <job>",
		Short: "Enqueue a job onto the background worker",
		Long:  "Jobs: billing-run, latefee-run, rent-reminder, payment-poll, statement-archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskType, ok := taskTypes[args[0]]
			if !ok {
				return fmt.Errorf("unknown job %q", args[0])
			}

			date, _ := cmd.Flags().GetString("date")
			var payload []byte
			if date != "" {
				if _, err := parseDate(date); err != nil {
					return err
				}
				payload = []byte(fmt.Sprintf(`{"run_date":%q}`, date))
			}

			cfg, err := config.Load("cli")
			if err != nil {
				return err
			}
			rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				return err
			}
			defer func() { _ = cache.DisconnectRedis(rdb) }()

			client := tasks.NewClient(rdb)
			defer client.Close()

			info, err := client.Enqueue(asynq.NewTask(taskType, payload), asynq.Queue("critical"))
			if err != nil {
				return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
			}
			fmt.Printf("Enqueued %s (task ID %s, queue %s)\n", taskType, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().String("date", "", "Run date payload (YYYY-MM-DD), defaults to today at execution")
	return cmd
}

func agingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aging",
		Short: "Print the portfolio aging report",
		RunE: func(cmd *cobra.Command, args []string) error {
			asOfFlag, _ := cmd.Flags().GetString("as-of")
			asOf, err := parseDate(asOfFlag)
			if err != nil {
				return err
			}

			env, err := connect()
			if err != nil {
				return err
			}
			defer env.close()

			ledger := services.NewLedgerService(env.db)
			settings := services.NewSettingsService(env.db, env.cfg, nil)
			stmts := services.NewStatementService(env.cfg, ledger, nil, settings)

			report, err := stmts.BuildAgingReport(context.Background(), asOf)
			if err != nil {
				return fmt.Errorf("failed to build aging report: %w", err)
			}

			fmt.Printf("Aging as of %s\n\n", report.AsOf.Format("2006-01-02"))
			fmt.Printf("%-12s %-12s %-12s %15s %10s\n", "Lease", "Tenant", "Unit", "Balance", "Bucket")
			for _, row := range report.Leases {
				fmt.Printf("%-12s %-12s %-12s %15d %10s\n",
					row.LeaseID.String(), row.TenantID.String(), row.UnitID.String(), row.Balance, row.Bucket)
			}
			fmt.Println()
			for bucket, total := range report.Totals {
				fmt.Printf("%-10s %15d (%d leases)\n", bucket, total, report.Counts[bucket])
			}
			return nil
		},
	}
	cmd.Flags().String("as-of", "", "Report date (YYYY-MM-DD), defaults to today")
	return cmd
}

func statementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement <leaseID>",
		Short: "Print a lease's statement of account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leaseID, err := utils.ParseSixID(args[0])
			if err != nil {
				return fmt.Errorf("invalid lease ID %q: %w", args[0], err)
			}
			asOfFlag, _ := cmd.Flags().GetString("as-of")
			asOf, err := parseDate(asOfFlag)
			if err != nil {
				return err
			}

			env, err := connect()
			if err != nil {
				return err
			}
			defer env.close()

			ledger := services.NewLedgerService(env.db)
			settings := services.NewSettingsService(env.db, env.cfg, nil)
			stmts := services.NewStatementService(env.cfg, ledger, nil, settings)

			st, err := stmts.RenderStatement(context.Background(), leaseID, asOf)
			if err != nil {
				return fmt.Errorf("failed to render statement: %w", err)
			}
			fmt.Print(st.Text())
			return nil
		},
	}
	cmd.Flags().String("as-of", "", "Statement date (YYYY-MM-DD), defaults to today")
	return cmd
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Ensure the ledger indexes exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := connect()
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := services.NewLedgerService(env.db).EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("failed to ensure indexes: %w", err)
			}
			fmt.Println("Ledger indexes ensured.")
			return nil
		},
	}
}
