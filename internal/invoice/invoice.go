package invoice

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"kihaan/backend/internal/domain"
)

// Render produces a printable, self-contained HTML invoice for an order.
// All order fields pass through html/template escaping.
func Render(order *domain.Order, companyName string) (string, error) {
	data := invoiceData{
		CompanyName: companyName,
		Order:       order,
	}
	var sb strings.Builder
	if err := invoiceTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	return sb.String(), nil
}

type invoiceData struct {
	CompanyName string
	Order       *domain.Order
}

// Rupees renders cents as a rupee amount with two decimals.
func rupees(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, cents/100, cents%100)
}

func shortDate(t time.Time) string {
	return t.Format("02 Jan 2006")
}

var invoiceTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"rupees":    rupees,
	"shortDate": shortDate,
	"percent":   func(p float64) string { return fmt.Sprintf("%g%%", p) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.Order.ID}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 24px; color: #222; }
h1 { font-size: 20px; margin-bottom: 0; }
.muted { color: #666; font-size: 12px; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; }
th, td { border: 1px solid #ccc; padding: 6px 8px; font-size: 13px; text-align: left; }
th { background: #f2f2f2; }
td.num, th.num { text-align: right; }
.totals { margin-top: 12px; width: 320px; margin-left: auto; }
.totals td { border: none; padding: 3px 8px; }
.badge { display: inline-block; padding: 2px 8px; border-radius: 4px; font-size: 12px; }
.paid { background: #d9f2d9; }
.partial { background: #fde8c8; }
</style>
</head>
<body>
<h1>{{.CompanyName}}</h1>
<p class="muted">Tax Invoice &middot; {{.Order.ID}} &middot; {{shortDate .Order.CreatedAt}}</p>

<p>
<strong>Billed to:</strong> {{.Order.Customer.Name}}<br>
{{if .Order.Customer.Phone}}{{.Order.Customer.Phone}}<br>{{end}}
{{if .Order.Customer.Email}}{{.Order.Customer.Email}}<br>{{end}}
{{if .Order.Delivery.Address}}<strong>Deliver to:</strong> {{.Order.Delivery.Address}}{{end}}
</p>

<table>
<tr><th>Item</th><th class="num">Qty</th><th class="num">Price</th><th class="num">GST</th><th class="num">GST Amt</th><th class="num">Total</th></tr>
{{range .Order.Items}}
<tr>
<td>{{.Name}}</td>
<td class="num">{{.Quantity}}</td>
<td class="num">{{rupees .PriceCents}}</td>
<td class="num">{{percent .GSTPercent}}</td>
<td class="num">{{rupees .GSTAmountCents}}</td>
<td class="num">{{rupees .TotalWithGSTCents}}</td>
</tr>
{{end}}
</table>

<table class="totals">
<tr><td>Total GST</td><td class="num">{{rupees .Order.TotalGSTCents}}</td></tr>
<tr><td><strong>Grand Total</strong></td><td class="num"><strong>{{rupees .Order.TotalAmountCents}}</strong></td></tr>
<tr><td>Paid</td><td class="num">{{rupees .Order.Payment.AmountPaidCents}}</td></tr>
<tr><td>Balance Due</td><td class="num">{{rupees .Order.Payment.RemainingBalanceCents}}</td></tr>
</table>

<p><span class="badge {{.Order.Payment.Status}}">{{.Order.Payment.Status}}</span></p>
</body>
</html>
`))
