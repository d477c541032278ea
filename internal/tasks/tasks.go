package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/services"
	"github.com/ugacribs/rentpay/internal/utils"
)

// Task types for the background worker.
const (
	TypeRecurringBilling = "billing:rent:run"
	TypeLateFeeRun       = "billing:latefee:run"
	TypeRentReminder     = "billing:reminder:due"
	TypeStatementArchive = "billing:statement:archive"
	TypePaymentPoll      = "payments:poll"
)

// pollMinAge keeps the poller off attempts young enough for the gateway
// callback to settle them on its own.
const pollMinAge = 2 * time.Minute

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg           *config.Config
	billingRuns   services.IBillingRunService
	payments      services.IPaymentService
	notifications services.INotificationService
	statements    services.IStatementService
	ledger        services.ILedgerService
}

func NewTaskProcessor(
	cfg *config.Config,
	billingRuns services.IBillingRunService,
	payments services.IPaymentService,
	notifications services.INotificationService,
	statements services.IStatementService,
	ledger services.ILedgerService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:           cfg,
		billingRuns:   billingRuns,
		payments:      payments,
		notifications: notifications,
		statements:    statements,
		ledger:        ledger,
	}
}

// SetupServer configures an Asynq server with all task handlers registered.
// The caller runs and shuts it down.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRecurringBilling, processor.HandleRecurringBillingTask)
	mux.HandleFunc(TypeLateFeeRun, processor.HandleLateFeeTask)
	mux.HandleFunc(TypeRentReminder, processor.HandleRentReminderTask)
	mux.HandleFunc(TypeStatementArchive, processor.HandleStatementArchiveTask)
	mux.HandleFunc(TypePaymentPoll, processor.HandlePaymentPollTask)
	log.Println("Registered billing and payment task handlers.")

	return srv, mux
}

// NewScheduler builds the cron scheduler for the daily jobs. All entries are
// pinned to the billing timezone so "daily" means the property's calendar
// day, not the host's.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.BillingTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid billing timezone %q: %w", cfg.BillingTimezone, err)
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		&asynq.SchedulerOpts{Location: loc},
	)

	entries := []struct {
		spec     string
		taskType string
		opts     []asynq.Option
	}{
		{"5 0 * * *", TypeRecurringBilling, []asynq.Option{asynq.Queue("critical"), asynq.MaxRetry(5)}},
		{"35 0 * * *", TypeLateFeeRun, []asynq.Option{asynq.Queue("critical"), asynq.MaxRetry(5)}},
		{"0 9 * * *", TypeRentReminder, []asynq.Option{asynq.Queue("default")}},
		{"*/10 * * * *", TypePaymentPoll, []asynq.Option{asynq.Queue("critical")}},
		{"0 2 1 * *", TypeStatementArchive, []asynq.Option{asynq.Queue("low")}},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, asynq.NewTask(e.taskType, nil), e.opts...); err != nil {
			return nil, fmt.Errorf("failed to register scheduler entry %s: %w", e.taskType, err)
		}
	}
	return scheduler, nil
}

// --- Task Handlers ---

// BillingRunPayload optionally pins a run to a specific date, for replaying a
// missed day. An empty payload means "today" in the billing timezone.
type BillingRunPayload struct {
	RunDate string `json:"run_date,omitempty"` // 2006-01-02
}

func (p *TaskProcessor) runDateFrom(t *asynq.Task) (time.Time, error) {
	if len(t.Payload()) > 0 {
		var payload BillingRunPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return time.Time{}, fmt.Errorf("failed to unmarshal run payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.RunDate != "" {
			runDate, err := time.Parse("2006-01-02", payload.RunDate)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid run date %q: %w", payload.RunDate, asynq.SkipRetry)
			}
			return runDate, nil
		}
	}

	loc, err := time.LoadLocation(p.cfg.BillingTimezone)
	if err != nil {
		log.Printf("Invalid billing timezone %q, falling back to UTC: %v", p.cfg.BillingTimezone, err)
		loc = time.UTC
	}
	y, m, d := time.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// HandleRecurringBillingTask posts monthly rent charges for leases due
// tomorrow. Safe to replay; already-charged cycles are skipped.
func (p *TaskProcessor) HandleRecurringBillingTask(ctx context.Context, t *asynq.Task) error {
	runDate, err := p.runDateFrom(t)
	if err != nil {
		return err
	}

	report, err := p.billingRuns.RunRecurringBilling(ctx, runDate)
	if err != nil {
		return fmt.Errorf("recurring billing run for %s failed: %w", runDate.Format("2006-01-02"), err)
	}
	log.Printf("Recurring billing for %s: %d charged, %d skipped, %d failed (of %d)",
		runDate.Format("2006-01-02"), report.Successful, report.Skipped, report.Failed, report.Total)
	return nil
}

// HandleLateFeeTask assesses late fees and emails a notice for each one
// posted. A notice that fails to send is logged and dropped.
func (p *TaskProcessor) HandleLateFeeTask(ctx context.Context, t *asynq.Task) error {
	runDate, err := p.runDateFrom(t)
	if err != nil {
		return err
	}

	report, err := p.billingRuns.RunLateFees(ctx, runDate)
	if err != nil {
		return fmt.Errorf("late fee run for %s failed: %w", runDate.Format("2006-01-02"), err)
	}
	log.Printf("Late fee run for %s: %d assessed, %d skipped, %d failed (of %d)",
		runDate.Format("2006-01-02"), report.Successful, report.Skipped, report.Failed, report.Total)

	for leaseIDStr, fee := range report.Charged {
		leaseID, err := utils.ParseSixID(leaseIDStr)
		if err != nil {
			log.Printf("Skipping late fee notice for unparseable lease ID %s: %v", leaseIDStr, err)
			continue
		}
		lease, err := p.ledger.FindLease(ctx, leaseID)
		if err != nil {
			log.Printf("Cannot load lease %s for late fee notice: %v", leaseIDStr, err)
			continue
		}
		dueDate := billing.PrevDueDate(lease.RentDueDay, runDate)
		if err := p.notifications.SendLateFeeNotice(ctx, lease, fee, dueDate); err != nil {
			log.Printf("Failed to send late fee notice for lease %s: %v", leaseIDStr, err)
		}
	}
	return nil
}

// HandleRentReminderTask emails every tenant whose next due date falls at the
// reminder window's edge.
func (p *TaskProcessor) HandleRentReminderTask(ctx context.Context, t *asynq.Task) error {
	runDate, err := p.runDateFrom(t)
	if err != nil {
		return err
	}

	due, err := p.billingRuns.DueSoonLeases(ctx, runDate)
	if err != nil {
		return fmt.Errorf("due-soon query for %s failed: %w", runDate.Format("2006-01-02"), err)
	}

	sent := 0
	for i := range due {
		lease := &due[i]
		dueDate := billing.NextDueDate(lease.RentDueDay, runDate)
		if err := p.notifications.SendRentReminder(ctx, lease, dueDate); err != nil {
			log.Printf("Failed to send rent reminder for lease %s: %v", lease.ID.String(), err)
			continue
		}
		sent++
	}
	log.Printf("Rent reminders for %s: %d sent of %d due", runDate.Format("2006-01-02"), sent, len(due))
	return nil
}

// HandleStatementArchiveTask renders and uploads a statement for every active
// lease. One lease's failure never blocks the rest.
func (p *TaskProcessor) HandleStatementArchiveTask(ctx context.Context, t *asynq.Task) error {
	runDate, err := p.runDateFrom(t)
	if err != nil {
		return err
	}

	leases, err := p.ledger.ListActiveLeases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list leases for statement archive: %w", err)
	}

	archived := 0
	for i := range leases {
		lease := &leases[i]
		key, err := p.statements.ArchiveStatement(ctx, lease.ID, runDate)
		if err != nil {
			log.Printf("Failed to archive statement for lease %s: %v", lease.ID.String(), err)
			continue
		}
		log.Printf("Archived statement %s", key)
		archived++
	}
	log.Printf("Statement archive for %s: %d of %d leases", runDate.Format("2006-01-02"), archived, len(leases))
	return nil
}

// HandlePaymentPollTask settles pending payment attempts whose callbacks
// never arrived.
func (p *TaskProcessor) HandlePaymentPollTask(ctx context.Context, t *asynq.Task) error {
	report, err := p.payments.PollPendingAttempts(ctx, pollMinAge)
	if err != nil {
		return fmt.Errorf("payment poll failed: %w", err)
	}
	if report.Total > 0 {
		log.Printf("Payment poll: %d settled, %d still pending, %d failed (of %d)",
			report.Successful, report.Skipped, report.Failed, report.Total)
	}
	return nil
}
