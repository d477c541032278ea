package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ugacribs/rentpay/internal/billing"
	"github.com/ugacribs/rentpay/internal/config"
	"github.com/ugacribs/rentpay/internal/email"
	"github.com/ugacribs/rentpay/internal/models"
	"github.com/ugacribs/rentpay/internal/utils"
)

// INotificationService sends tenant-facing emails. Delivery failures are the
// caller's to log and move past; an email that does not go out must never
// roll back a ledger write.
type INotificationService interface {
	SendPaymentReceipt(ctx context.Context, lease *models.Lease, attempt *models.PaymentAttempt) error
	SendRentReminder(ctx context.Context, lease *models.Lease, dueDate time.Time) error
	SendLateFeeNotice(ctx context.Context, lease *models.Lease, fee int64, dueDate time.Time) error
}

type notificationService struct {
	cfg    *config.Config
	sender email.Sender
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(cfg *config.Config, sender email.Sender) INotificationService {
	return &notificationService{cfg: cfg, sender: sender}
}

// buildMessage assembles a full RFC 5322 message; senders expect headers and
// body in one byte slice.
func (s *notificationService) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.SmtpFromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func (s *notificationService) SendPaymentReceipt(ctx context.Context, lease *models.Lease, attempt *models.PaymentAttempt) error {
	if lease.TenantEmail == "" {
		return nil // Nothing to deliver to
	}
	subject := fmt.Sprintf("Payment received: %s", utils.FormatMoney(lease.CurrencyCode, attempt.Amount))
	body := fmt.Sprintf(
		"We have received your payment of %s for unit %s via %s.\n\nReference: %s\n\nThank you.\n",
		utils.FormatMoney(lease.CurrencyCode, attempt.Amount),
		lease.UnitID.String(),
		attempt.Gateway,
		attempt.CorrelationID,
	)
	return s.sender.Send(ctx, []string{lease.TenantEmail}, subject, s.buildMessage(lease.TenantEmail, subject, body))
}

func (s *notificationService) SendRentReminder(ctx context.Context, lease *models.Lease, dueDate time.Time) error {
	if lease.TenantEmail == "" {
		return nil
	}
	dueDate = billing.Date(dueDate)
	subject := fmt.Sprintf("Rent due %s", dueDate.Format("2 January 2006"))
	body := fmt.Sprintf(
		"A friendly reminder that rent of %s for unit %s is due on %s.\n",
		utils.FormatMoney(lease.CurrencyCode, lease.MonthlyRent),
		lease.UnitID.String(),
		dueDate.Format("2 January 2006"),
	)
	return s.sender.Send(ctx, []string{lease.TenantEmail}, subject, s.buildMessage(lease.TenantEmail, subject, body))
}

func (s *notificationService) SendLateFeeNotice(ctx context.Context, lease *models.Lease, fee int64, dueDate time.Time) error {
	if lease.TenantEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Late fee applied: %s", utils.FormatMoney(lease.CurrencyCode, fee))
	body := fmt.Sprintf(
		"A late fee of %s has been applied to your account for unit %s because the rent due on %s remains unpaid.\n",
		utils.FormatMoney(lease.CurrencyCode, fee),
		lease.UnitID.String(),
		billing.Date(dueDate).Format("2 January 2006"),
	)
	return s.sender.Send(ctx, []string{lease.TenantEmail}, subject, s.buildMessage(lease.TenantEmail, subject, body))
}
