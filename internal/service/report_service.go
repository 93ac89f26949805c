package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// ReportSender sends transactional emails for the exam lifecycle.
type ReportSender interface {
	// SendRegistrationNotification notifies the administrator that a student
	// has redeemed an access code and started the exam.
	SendRegistrationNotification(ctx context.Context, access *entity.ExamAccess) error

	// SendCompletionReport delivers the scored report to the student, the
	// supervisor and the administrator.
	SendCompletionReport(ctx context.Context, access *entity.ExamAccess, report *AttemptReport) error
}

// NoopReportSender is used when no email provider is configured.
type NoopReportSender struct{}

func (s *NoopReportSender) SendRegistrationNotification(ctx context.Context, access *entity.ExamAccess) error {
	log.Printf("[ReportSender] noop registration notification for code=%s", access.AccessCode)
	return nil
}

func (s *NoopReportSender) SendCompletionReport(ctx context.Context, access *entity.ExamAccess, report *AttemptReport) error {
	log.Printf("[ReportSender] noop completion report for code=%s score=%d/%d", access.AccessCode, report.Score, report.TotalMarks)
	return nil
}

// ResendReportSender sends emails via Resend REST API.
type ResendReportSender struct {
	from       string
	adminEmail string
	client     *resend.Client
}

func NewResendReportSender(apiKey, from, adminEmail string) (*ResendReportSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendReportSender{
		from:       from,
		adminEmail: adminEmail,
		client:     resend.NewClient(apiKey),
	}, nil
}

func (s *ResendReportSender) SendRegistrationNotification(ctx context.Context, access *entity.ExamAccess) error {
	if s.adminEmail == "" {
		return nil
	}

	html := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
			<h2 style="color: #2563eb;">New Student Registration</h2>
			<p><strong>%s</strong> has just started the exam.</p>
			<table style="width: 100%%; border-collapse: collapse; margin-top: 15px;">
				<tr><td style="padding: 8px; color: #666;">Company:</td><td style="padding: 8px; font-weight: bold;">%s</td></tr>
				<tr><td style="padding: 8px; color: #666;">Email:</td><td style="padding: 8px; font-weight: bold;">%s</td></tr>
				<tr><td style="padding: 8px; color: #666;">Phone:</td><td style="padding: 8px; font-weight: bold;">%s</td></tr>
				<tr><td style="padding: 8px; color: #666;">Supervisor:</td><td style="padding: 8px; font-weight: bold;">%s (%s)</td></tr>
			</table>
		</div>`,
		htmlEscape(access.StudentName), htmlEscape(access.CompanyName),
		htmlEscape(access.StudentEmail), htmlEscape(access.StudentPhone),
		htmlEscape(orNA(access.SupervisorName)), htmlEscape(orNA(access.SupervisorEmail)))

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{s.adminEmail},
		Subject: fmt.Sprintf("New Student Registration: %s", access.StudentName),
		Html:    html,
	}

	return s.sendWithRetry(ctx, params, "reg:"+access.AccessCode)
}

func (s *ResendReportSender) SendCompletionReport(ctx context.Context, access *entity.ExamAccess, report *AttemptReport) error {
	recipients := make([]string, 0, 3)
	if access.StudentEmail != "" {
		recipients = append(recipients, access.StudentEmail)
	}
	if access.SupervisorEmail != "" {
		recipients = append(recipients, access.SupervisorEmail)
	}
	if s.adminEmail != "" {
		recipients = append(recipients, s.adminEmail)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients for completion report, code=%s", access.AccessCode)
	}

	verdict := "FAIL"
	color := "#dc2626"
	if report.Passed {
		verdict = "PASS"
		color = "#16a34a"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		<div style="font-family: Arial, sans-serif; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
			<h2 style="color: #2563eb;">Exam Report: %s</h2>
			<p><strong>%s</strong> (%s) has completed the exam.</p>
			<table style="width: 100%%; border-collapse: collapse; margin-top: 15px;">
				<tr><td style="padding: 8px; color: #666;">Score:</td><td style="padding: 8px; font-weight: bold;">%d / %d (%d%%)</td></tr>
				<tr><td style="padding: 8px; color: #666;">Result:</td><td style="padding: 8px; font-weight: bold; color: %s;">%s</td></tr>
				<tr><td style="padding: 8px; color: #666;">Correct:</td><td style="padding: 8px; font-weight: bold;">%d</td></tr>
				<tr><td style="padding: 8px; color: #666;">Wrong:</td><td style="padding: 8px; font-weight: bold;">%d</td></tr>
				<tr><td style="padding: 8px; color: #666;">Skipped:</td><td style="padding: 8px; font-weight: bold;">%d</td></tr>
			</table>`,
		htmlEscape(report.ExamTitle), htmlEscape(access.StudentName), htmlEscape(access.CompanyName),
		report.Score, report.TotalMarks, report.Percentage, color, verdict,
		report.CorrectCount, report.WrongCount, report.SkippedCount)

	if report.IsLate {
		sb.WriteString(`<p style="color: #d97706;">Submitted after the deadline (within the grace period).</p>`)
	}
	if report.IsExpired {
		sb.WriteString(`<p style="color: #dc2626;">Attempt was closed automatically after the time ran out.</p>`)
	}
	sb.WriteString(`</div>`)

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      recipients,
		Subject: fmt.Sprintf("Exam Report: %s — %s", report.ExamTitle, verdict),
		Html:    sb.String(),
	}

	return s.sendWithRetry(ctx, params, "report:"+access.AccessCode)
}

func (s *ResendReportSender) sendWithRetry(ctx context.Context, params *resend.SendEmailRequest, idempotencyKey string) error {
	options := &resend.SendEmailOptions{}
	if strings.TrimSpace(idempotencyKey) != "" {
		options.IdempotencyKey = strings.TrimSpace(idempotencyKey)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
