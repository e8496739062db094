package mailer

import (
	"bytes"
	"html/template"
)

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Welcome{{if .Name}}, {{.Name}}{{end}}!</h2>
  <p>Your account has been created. You can sign in with <strong>{{.Email}}</strong> right away.</p>
  <p>If this wasn't you, please ignore this message.</p>
</body>
</html>`))

// WelcomeData feeds the welcome email template.
type WelcomeData struct {
	Name  string
	Email string
}

// RenderWelcome renders the welcome email body.
func RenderWelcome(data WelcomeData) (subject, html string, err error) {
	var buf bytes.Buffer
	if err := welcomeTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return "Welcome aboard", buf.String(), nil
}
