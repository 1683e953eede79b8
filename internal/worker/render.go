package worker

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"spese-report/internal/core"
	"spese-report/internal/insights"
	"spese-report/internal/period"
	"spese-report/internal/report"
	appweb "spese-report/web"
)

// maxEmailCategories caps the category table of an e-mail.
const maxEmailCategories = 5

var titles = map[period.Granularity]string{
	period.Week:    "Weekly report",
	period.Month:   "Monthly report",
	period.Quarter: "Quarterly report",
	period.Yearly:  "Yearly report",
}

var units = map[period.Granularity]string{
	period.Week:    "week",
	period.Month:   "month",
	period.Quarter: "quarter",
	period.Yearly:  "year",
}

// Renderer turns reports into e-mails.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded e-mail templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("email").Funcs(template.FuncMap{
		"money": func(m core.Money) string { return m.String() },
	}).ParseFS(appweb.EmailFS, "templates/email/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

type emailData struct {
	Subject    string
	Title      string
	Label      string
	Unit       string
	Start      string
	End        string
	Name       string
	HasIncome  bool
	Change     string
	Report     *report.Report
	Categories []core.CategoryTotal
	Insights   []insights.Insight
}

// Email is a rendered report e-mail.
type Email struct {
	Subject string
	HTML    string
	Text    string
}

// Render builds the e-mail for user's report.
func (r *Renderer) Render(user core.User, rep *report.Report) (Email, error) {
	g := rep.Type
	data := emailData{
		Subject:   fmt.Sprintf("Your %s: %s", strings.ToLower(titles[g]), rep.Period.Label),
		Title:     titles[g],
		Label:     rep.Period.Label,
		Unit:      units[g],
		Start:     rep.Period.Start.String(),
		End:       rep.Period.End.String(),
		Name:      displayName(user),
		HasIncome: rep.Income != nil,
		Change:    expenseChange(rep),
		Report:    rep,
		Insights:  rep.Insights,
	}
	data.Categories = rep.Category
	if len(data.Categories) > maxEmailCategories {
		data.Categories = data.Categories[:maxEmailCategories]
	}

	var html bytes.Buffer
	if err := r.templates.ExecuteTemplate(&html, "report", data); err != nil {
		return Email{}, fmt.Errorf("render report email: %w", err)
	}
	return Email{Subject: data.Subject, HTML: html.String(), Text: plainText(data)}, nil
}

func displayName(u core.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return "there"
}

func expenseChange(rep *report.Report) string {
	prev := rep.Previous()
	if prev == nil || prev.ExpenseChange == nil {
		return ""
	}
	return fmt.Sprintf("%+d%%", *prev.ExpenseChange)
}

// plainText is the text/plain alternative of the e-mail.
func plainText(d emailData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s (%s to %s)\n\n", d.Title, d.Label, d.Start, d.End)
	if d.HasIncome {
		fmt.Fprintf(&b, "Income: %s\n", d.Report.TotalIncome)
	}
	fmt.Fprintf(&b, "Spent: %s\n", d.Report.TotalExpense)
	if d.HasIncome {
		fmt.Fprintf(&b, "Saved: %s (%d%%)\n", d.Report.Savings, d.Report.SavingsRate)
	}
	if d.Change != "" {
		fmt.Fprintf(&b, "Compared to last %s: %s\n", d.Unit, d.Change)
	}
	if len(d.Categories) > 0 {
		b.WriteString("\nTop categories:\n")
		for _, c := range d.Categories {
			fmt.Fprintf(&b, "- %s: %s\n", c.Category, c.Amount)
		}
	}
	if len(d.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, in := range d.Insights {
			fmt.Fprintf(&b, "- %s\n", in.Message)
		}
	}
	return b.String()
}
