package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// InvoiceEmailLine is one rendered line item
type InvoiceEmailLine struct {
	Description string
	Quantity    string
	UnitPrice   string
	Amount      string
}

// InvoiceEmailData feeds the invoice template
type InvoiceEmailData struct {
	Subject      string
	CustomerName string
	CompanyName  string
	Number       string
	IssueDate    string
	DueDate      string
	Lines        []InvoiceEmailLine
	Subtotal     string
	Tax          string
	Total        string
	Notes        string
	PayURL       string
	Year         int
}

// Embedded email templates
var emailTemplates = map[string]string{
	"invoice": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; margin: 20px 0; }
        th, td { padding: 6px 8px; border-bottom: 1px solid #eee; text-align: left; }
        td.num, th.num { text-align: right; }
        .total { font-weight: bold; }
        .button { display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Invoice {{.Number}}</h2>
        <p>Issued {{.IssueDate}}{{if .DueDate}}, due {{.DueDate}}{{end}}</p>
    </div>

    <p>Hello {{.CustomerName}},</p>
    <p>Please find your invoice below.</p>

    <table>
        <tr><th>Description</th><th class="num">Qty</th><th class="num">Unit price</th><th class="num">Amount</th></tr>
        {{range .Lines}}<tr><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.Amount}}</td></tr>
        {{end}}<tr><td colspan="3" class="num">Subtotal</td><td class="num">{{.Subtotal}}</td></tr>
        <tr><td colspan="3" class="num">Tax</td><td class="num">{{.Tax}}</td></tr>
        <tr class="total"><td colspan="3" class="num">Total</td><td class="num">{{.Total}}</td></tr>
    </table>

    {{if .Notes}}<p>{{.Notes}}</p>{{end}}
    {{if .PayURL}}<p style="text-align: center;"><a href="{{.PayURL}}" class="button">Pay online</a></p>{{end}}

    <div class="footer">
        <p>© {{.Year}} {{.CompanyName}}. All rights reserved.</p>
    </div>
</body>
</html>`,
}

var parsedTemplates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(emailTemplates))
	for name, body := range emailTemplates {
		out[name] = template.Must(template.New(name).Parse(body))
	}
	return out
}()

// RenderEmail executes one of the embedded HTML templates
func RenderEmail(name string, data interface{}) (string, error) {
	tmpl, ok := parsedTemplates[name]
	if !ok {
		return "", fmt.Errorf("email template %q not found", name)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return body.String(), nil
}

// CurrentYear is used in email footers
func CurrentYear() int {
	return time.Now().Year()
}
