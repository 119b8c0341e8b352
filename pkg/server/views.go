package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/Geniuskaa/maraton_registration/pkg/admin"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
)

//go:embed templates/*.html
var templatesFS embed.FS

type views struct {
	form  *template.Template
	login *template.Template
	admin *template.Template
}

func mustParseViews() *views {
	parse := func(name string) *template.Template {
		return template.Must(template.ParseFS(templatesFS, "templates/"+name))
	}
	return &views{
		form:  parse("form.html"),
		login: parse("login.html"),
		admin: parse("admin.html"),
	}
}

type formView struct {
	Planteles []registration.Plantel
	Grados    []registration.GradoGroup
	Roles     []registration.Role
	Values    registration.Registration
	Status    string
	Failed    bool
}

func newFormView(values registration.Registration) formView {
	return formView{
		Planteles: registration.Planteles,
		Grados:    registration.Grados,
		Roles:     registration.FormRoles,
		Values:    values,
	}
}

type loginView struct {
	Error string
}

type attemptRow struct {
	Created  string
	Outcome  string
	Status   int
	Plantel  string
	Duration string
}

type adminView struct {
	Rows          []admin.Row
	Alerts        []string
	LoadedAt      string
	ReportEnabled bool
	Attempts      []attemptRow
}

// alerts collects the messages the admin page shows on top.
type alerts struct {
	msgs []string
}

func (a *alerts) Alert(msg string) {
	a.msgs = append(a.msgs, msg)
}

// render executes into a buffer first so a template error never leaves a
// half-written page.
func (s *Server) render(w http.ResponseWriter, t *template.Template, status int, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		s.logger.Error("Template execution failed", zap.String("template", t.Name()), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("Response write failed", zap.Error(err))
	}
}
