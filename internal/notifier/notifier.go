package notifier

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/mailer"
	"kihaan/backend/internal/store"
)

const alertHour = 9

// Notifier sweeps the catalog once a day and mails a low-stock summary.
// An item is included at most once per cooldown window so a slow-moving
// shortage does not spam the recipients.
type Notifier struct {
	repo        store.Repository
	mail        mailer.Mailer
	recipients  []string
	threshold   int
	companyName string
	cooldown    time.Duration
}

func New(repo store.Repository, mail mailer.Mailer, recipients []string, threshold int, companyName string) *Notifier {
	if threshold <= 0 {
		threshold = 10
	}
	return &Notifier{
		repo:        repo,
		mail:        mail,
		recipients:  recipients,
		threshold:   threshold,
		companyName: companyName,
		cooldown:    24 * time.Hour,
	}
}

// Run fires the sweep every day at 09:00 server time until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	if len(n.recipients) == 0 {
		log.Printf("[notifier] no alert recipients configured, low stock sweep disabled")
		return
	}
	for {
		timer := time.NewTimer(time.Until(nextRunAt(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := n.RunOnce(ctx); err != nil {
				log.Printf("[notifier] low stock sweep failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single sweep: find low items outside the cooldown,
// send one summary mail and stamp them.
func (n *Notifier) RunOnce(ctx context.Context) error {
	items, err := n.repo.ListLowStockItems(ctx, n.threshold, 0)
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}

	now := time.Now().UTC()
	due := items[:0]
	for _, item := range items {
		if item.LastLowStockAlertSent != nil && now.Sub(*item.LastLowStockAlertSent) < n.cooldown {
			continue
		}
		due = append(due, item)
	}
	if len(due) == 0 {
		return nil
	}

	html, err := renderSummary(due, n.threshold, n.companyName)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Low stock alert: %d item(s) below %d", len(due), n.threshold)
	if err := n.mail.Send(ctx, n.recipients, subject, html); err != nil {
		return fmt.Errorf("send low stock mail: %w", err)
	}

	ids := make([]string, 0, len(due))
	for _, item := range due {
		ids = append(ids, item.ID)
	}
	if err := n.repo.MarkLowStockAlerted(ctx, ids, now); err != nil {
		return fmt.Errorf("mark alerted: %w", err)
	}
	log.Printf("[notifier] low stock summary sent for %d item(s)", len(due))
	return nil
}

func nextRunAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), alertHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

var summaryTmpl = template.Must(template.New("lowstock").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
<h2>{{.Company}} low stock report</h2>
<p>The following items are below the threshold of {{.Threshold}}:</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Item</th><th>Model</th><th>Category</th><th>Stock</th></tr>
{{range .Items}}
<tr><td>{{.Name}}</td><td>{{.ModelNo}}</td><td>{{.Category}}</td><td>{{.Stock}}</td></tr>
{{end}}
</table>
<p>Restock soon to avoid lost sales.</p>
</body>
</html>
`))

func renderSummary(items []domain.Item, threshold int, company string) (string, error) {
	var sb strings.Builder
	err := summaryTmpl.Execute(&sb, struct {
		Company   string
		Threshold int
		Items     []domain.Item
	}{company, threshold, items})
	if err != nil {
		return "", fmt.Errorf("render low stock summary: %w", err)
	}
	return sb.String(), nil
}
