package notifier

import (
	"strings"
	"text/template"

	"github.com/BearBump/CargoDesk/internal/models"
)

// Site identifies the sender in message bodies.
type Site struct {
	Name string
	URL  string
}

type templateData struct {
	Site      Site
	Recipient *models.User
	Tracking  *models.Tracking
	User      *models.User
	Mark      *models.ShippingMark
}

func (d templateData) StatusLabel() string {
	if d.Tracking == nil {
		return ""
	}
	return models.TrackingStatusLabel(d.Tracking.Status)
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var messageTemplates = map[string]messageTemplate{
	models.NotificationTrackingCreated: mustTemplate(
		`New shipment {{.Tracking.TrackingNumber}} added`,
		`Hello {{.Recipient.FullName}},

Your shipment {{.Tracking.TrackingNumber}} has been added to {{.Site.Name}}.
Status: {{.StatusLabel}}{{if .Tracking.ShippingMark}}
Shipping mark: {{.Tracking.ShippingMark}}{{end}}{{if .Tracking.ETA}}
ETA: {{.Tracking.ETA.Format "2006-01-02"}}{{end}}

Track it at {{.Site.URL}}/trackings/{{.Tracking.TrackingNumber}}
`),
	models.NotificationTrackingUpdate: mustTemplate(
		`Shipment {{.Tracking.TrackingNumber}}: {{.StatusLabel}}`,
		`Hello {{.Recipient.FullName}},

Your shipment {{.Tracking.TrackingNumber}} is now "{{.StatusLabel}}".{{if .Tracking.CBM}}
Volume: {{.Tracking.CBM}} CBM{{end}}{{if .Tracking.ShippingFee}}
Shipping fee: ${{.Tracking.ShippingFee}}{{end}}

{{.Site.URL}}/trackings/{{.Tracking.TrackingNumber}}
`),
	models.NotificationWelcome: mustTemplate(
		`Welcome to {{.Site.Name}}`,
		`Hello {{.Recipient.FullName}},

Your {{.Site.Name}} account "{{.Recipient.Username}}" is ready.
Generate your shipping mark at {{.Site.URL}}/shipping-mark to start receiving goods.
`),
	models.NotificationShippingMarkCreated: mustTemplate(
		`Your shipping mark {{.Mark.MarkID}}`,
		`Hello {{.Recipient.FullName}},

Your shipping mark is {{.Mark.MarkID}} ({{.Mark.Name}}).
Write it on every package you send to our warehouse.
`),
	models.NotificationAdminNewShipment: mustTemplate(
		`[{{.Site.Name}}] new shipment {{.Tracking.TrackingNumber}}`,
		`Tracking {{.Tracking.TrackingNumber}} was added{{if .User}} by {{.User.Username}} ({{.User.Email}}){{end}}.
Shipping mark: {{if .Tracking.ShippingMark}}{{.Tracking.ShippingMark}}{{else}}-{{end}}
Status: {{.StatusLabel}}
`),
	models.NotificationAdminNewUser: mustTemplate(
		`[{{.Site.Name}}] new user {{.User.Username}}`,
		`{{.User.FullName}} <{{.User.Email}}> registered with contact {{.User.Contact}}{{if .User.Location}} from {{.User.Location}}{{end}}.
`),
}

func mustTemplate(subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New("subject").Option("missingkey=error").Parse(subject)),
		body:    template.Must(template.New("body").Option("missingkey=error").Parse(body)),
	}
}

func render(kind string, data templateData) (subject, body string, err error) {
	tpl, ok := messageTemplates[kind]
	if !ok {
		return "", "", errUnknownKind(kind)
	}
	var sb, bb strings.Builder
	if err := tpl.subject.Execute(&sb, data); err != nil {
		return "", "", err
	}
	if err := tpl.body.Execute(&bb, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}
