// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package mailer

import (
	"fmt"
	"html/template"
	"strings"
)

const (
	subjectConfirmation = "Registration Confirmed - Texperia 2026"
	subjectAttendance   = "Attendance Confirmed - Texperia 2026"
)

// Template data is the Message itself plus the derived QR image URL; keep
// the templates reading from one flat struct.
type templateData struct {
	Name       string
	Token      string
	ScanURL    string
	QRImageURL string
	Day1Events []string
	Day2Events []string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f7; margin: 0; padding: 24px;">
  <div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px;">
    <h1 style="color: #1a1a2e; font-size: 22px; margin-top: 0;">Texperia 2026</h1>
    <p>Hi {{.Name}},</p>
    <p>Your registration is confirmed. Present the QR code below at the check-in desk; it admits you once.</p>
    <div style="text-align: center; margin: 24px 0;">
      <img src="{{.QRImageURL}}" alt="Check-in QR code" width="256" height="256" style="border: 1px solid #e0e0e0;"/>
    </div>
    <p style="font-size: 13px; color: #555;">If the image does not load, open this link on your phone at the desk:<br/>
      <a href="{{.ScanURL}}">{{.ScanURL}}</a></p>
    <p style="font-size: 13px; color: #555;">Token: <code>{{.Token}}</code></p>
    {{if .Day1Events}}<p><strong>Day 1 events:</strong> {{range $i, $e := .Day1Events}}{{if $i}}, {{end}}{{$e}}{{end}}</p>{{end}}
    {{if .Day2Events}}<p><strong>Day 2 events:</strong> {{range $i, $e := .Day2Events}}{{if $i}}, {{end}}{{$e}}{{end}}</p>{{end}}
    <p style="margin-bottom: 0;">See you there!<br/>Texperia Tech Team</p>
  </div>
</body>
</html>`))

var attendanceTmpl = template.Must(template.New("attendance").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f7; margin: 0; padding: 24px;">
  <div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 32px;">
    <h1 style="color: #1a1a2e; font-size: 22px; margin-top: 0;">Texperia 2026</h1>
    <p>Hi {{.Name}},</p>
    <p>Your attendance has been recorded. Welcome to Texperia 2026!</p>
    {{if .Day1Events}}<p><strong>Day 1 events:</strong> {{range $i, $e := .Day1Events}}{{if $i}}, {{end}}{{$e}}{{end}}</p>{{end}}
    {{if .Day2Events}}<p><strong>Day 2 events:</strong> {{range $i, $e := .Day2Events}}{{if $i}}, {{end}}{{$e}}{{end}}</p>{{end}}
    <p style="margin-bottom: 0;">Enjoy the event!<br/>Texperia Tech Team</p>
  </div>
</body>
</html>`))

// Render produces the subject line and HTML body for a message.
func Render(msg Message) (subject, body string, err error) {
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = "Participant"
	}

	data := templateData{
		Name:       name,
		Token:      msg.Token,
		ScanURL:    msg.RedemptionURL,
		QRImageURL: qrImageURL(msg.RedemptionURL),
		Day1Events: msg.Day1Events,
		Day2Events: msg.Day2Events,
	}

	var tmpl *template.Template
	switch msg.Kind {
	case KindConfirmation:
		subject = subjectConfirmation
		tmpl = confirmationTmpl
	case KindAttendance:
		subject = subjectAttendance
		tmpl = attendanceTmpl
	default:
		return "", "", fmt.Errorf("unknown email kind %q", msg.Kind)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", "", err
	}
	return subject, sb.String(), nil
}

// qrImageURL derives the hosted QR image URL from the scan URL. The service
// serves the PNG on GET of the same path, so the email embeds the image
// without attachments.
func qrImageURL(scanURL string) string {
	return scanURL
}
