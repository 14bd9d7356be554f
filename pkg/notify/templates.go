package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	emailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))
	printer        = message.NewPrinter(language.English)
)

// FormatAmount renders a currency amount with grouping, e.g. $1,250.00.
func FormatAmount(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

// BudgetAlertEmail is the data for the monthly budget alert email.
type BudgetAlertEmail struct {
	Name       string
	Month      time.Time
	Budget     float64
	Spent      float64
	Percentage float64
}

// RenderBudgetAlert returns the subject and HTML body of a budget alert.
func RenderBudgetAlert(d BudgetAlertEmail) (subject, body string, err error) {
	name := d.Name
	if name == "" {
		name = "there"
	}
	pct := printer.Sprintf("%.0f", d.Percentage)
	body, err = render("budget_alert.html", map[string]string{
		"Name":       name,
		"Month":      d.Month.Format("January 2006"),
		"Budget":     FormatAmount(d.Budget),
		"Spent":      FormatAmount(d.Spent),
		"Percentage": pct,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("You have used %s%% of your monthly budget", pct), body, nil
}

// ListInviteEmail is the data for the list invitation email.
type ListInviteEmail struct {
	InviterName string
	ListName    string
}

// RenderListInvite returns the subject and HTML body of a list invitation.
func RenderListInvite(d ListInviteEmail) (subject, body string, err error) {
	inviter := d.InviterName
	if inviter == "" {
		inviter = "Someone"
	}
	body, err = render("list_invite.html", map[string]string{
		"InviterName": inviter,
		"ListName":    d.ListName,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%s shared %q with you", inviter, d.ListName), body, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
