package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/Geniuskaa/maraton_registration/pkg/admin"
	"github.com/Geniuskaa/maraton_registration/pkg/auth"
	"github.com/Geniuskaa/maraton_registration/pkg/download"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
)

const (
	MSG_LOGIN_INVALID        = "Contraseña incorrecta."
	MSG_LOGIN_THROTTLED      = "Demasiados intentos, intenta más tarde."
	MSG_LOGIN_NOT_CONFIGURED = "El acceso administrativo no está configurado."
	MSG_REPORT_DISABLED      = "El envío de reportes por correo no está configurado."
	MSG_XLSX_FAILED          = "No se pudo generar el archivo de Excel."
)

func (s *Server) handleForm(writer http.ResponseWriter, request *http.Request) {
	s.render(writer, s.views.form, http.StatusOK, newFormView(registration.Registration{}))
}

func (s *Server) handleRegister(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseForm(); err != nil {
		http.Error(writer, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	raw := registration.Registration{
		FullName:  request.PostFormValue("full_name"),
		Plantel:   request.PostFormValue("plantel"),
		ChildName: request.PostFormValue("child_name"),
		Grado:     request.PostFormValue("grado"),
		Role:      request.PostFormValue("role"),
	}

	saver := &download.AttachmentSaver{W: writer}
	out := s.submitter.Submit(request.Context(), raw, saver)
	if saver.Used() {
		return
	}

	view := newFormView(raw)
	view.Status = out.Status
	view.Failed = out.Failed
	s.render(writer, s.views.form, http.StatusOK, view)
}

func (s *Server) handleLoginForm(writer http.ResponseWriter, request *http.Request) {
	s.render(writer, s.views.login, http.StatusOK, loginView{})
}

func (s *Server) handleLogin(writer http.ResponseWriter, request *http.Request) {
	token, expires, err := s.auth.Login(clientKey(request), request.PostFormValue("password"))
	if err != nil {
		status, msg := http.StatusUnauthorized, MSG_LOGIN_INVALID
		switch {
		case errors.Is(err, auth.ErrThrottled):
			status, msg = http.StatusTooManyRequests, MSG_LOGIN_THROTTLED
		case errors.Is(err, auth.ErrNotConfigured):
			status, msg = http.StatusServiceUnavailable, MSG_LOGIN_NOT_CONFIGURED
		case !errors.Is(err, auth.ErrInvalidCredentials):
			s.logger.Error("Login failed", zap.Error(err))
			status = http.StatusInternalServerError
		}
		s.render(writer, s.views.login, status, loginView{Error: msg})
		return
	}

	s.auth.SetCookie(writer, request, token, expires)
	http.Redirect(writer, request, "/admin", http.StatusSeeOther)
}

func (s *Server) handleLogout(writer http.ResponseWriter, request *http.Request) {
	s.auth.ClearCookie(writer)
	http.Redirect(writer, request, "/", http.StatusSeeOther)
}

// handleAdmin shows the last loaded list, loading it on the first visit.
func (s *Server) handleAdmin(writer http.ResponseWriter, request *http.Request) {
	a := &alerts{}
	if s.panel.LoadedAt().IsZero() {
		s.load(request, a)
	}
	s.renderAdmin(writer, request, http.StatusOK, a)
}

func (s *Server) handleRefresh(writer http.ResponseWriter, request *http.Request) {
	a := &alerts{}
	s.load(request, a)
	s.renderAdmin(writer, request, http.StatusOK, a)
}

func (s *Server) load(request *http.Request, a *alerts) {
	if err := s.panel.Load(request.Context(), a); err != nil && !errors.Is(err, admin.ErrSuperseded) {
		s.logger.Debug("Admin load failed", zap.Error(err))
	}
}

func (s *Server) handleExportCSV(writer http.ResponseWriter, request *http.Request) {
	a := &alerts{}
	saver := &download.AttachmentSaver{W: writer}
	if err := s.panel.ExportCSV(request.Context(), saver, a); err != nil && !saver.Used() {
		s.renderAdmin(writer, request, http.StatusBadGateway, a)
	}
}

func (s *Server) handleExportXLSX(writer http.ResponseWriter, request *http.Request) {
	saver := &download.AttachmentSaver{W: writer}
	if err := s.panel.ExportXLSX(saver); err != nil && !saver.Used() {
		s.logger.Error("XLSX export failed", zap.Error(err))
		s.renderAdmin(writer, request, http.StatusInternalServerError, &alerts{msgs: []string{MSG_XLSX_FAILED}})
	}
}

func (s *Server) handleReport(writer http.ResponseWriter, request *http.Request) {
	a := &alerts{}
	status := http.StatusOK
	if s.mailer == nil {
		a.Alert(MSG_REPORT_DISABLED)
	} else if err := s.panel.MailReport(request.Context(), a); err != nil {
		status = http.StatusBadGateway
	}
	s.renderAdmin(writer, request, status, a)
}

// redirectOpener answers the request with a redirect to the badge. The admin
// form targets a new tab, so the redirect happens there.
type redirectOpener struct {
	writer  http.ResponseWriter
	request *http.Request
}

func (o redirectOpener) Open(url string) error {
	http.Redirect(o.writer, o.request, url, http.StatusFound)
	return nil
}

func (s *Server) handleReprint(writer http.ResponseWriter, request *http.Request) {
	a := &alerts{}
	if err := s.panel.Reprint(request.URL.Query().Get("q"), redirectOpener{writer, request}, a); err != nil {
		s.renderAdmin(writer, request, http.StatusBadRequest, a)
	}
}

func (s *Server) handleStats(writer http.ResponseWriter, request *http.Request) {
	stats, err := s.panel.Stats(request.Context())
	writer.Header().Set("Content-Type", "application/json")
	if err != nil {
		s.logger.Warn("Stats failed", zap.Error(err))
		writer.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(writer).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err := json.NewEncoder(writer).Encode(stats); err != nil {
		s.logger.Debug("Stats write failed", zap.Error(err))
	}
}

func (s *Server) renderAdmin(writer http.ResponseWriter, request *http.Request, status int, a *alerts) {
	view := adminView{
		Rows:          s.panel.Rows(),
		Alerts:        a.msgs,
		ReportEnabled: s.mailer != nil,
	}
	if at := s.panel.LoadedAt(); !at.IsZero() {
		view.LoadedAt = admin.FormatDateTime(&at, s.loc)
	}

	if s.attempts != nil {
		recent, err := s.attempts.RecentAttempts(request.Context(), RECENT_ATTEMPTS)
		if err != nil {
			s.logger.Warn("Recent attempts were not loaded", zap.Error(err))
		}
		for _, at := range recent {
			created := at.CreatedAt
			view.Attempts = append(view.Attempts, attemptRow{
				Created:  admin.FormatDateTime(&created, s.loc),
				Outcome:  at.Outcome,
				Status:   at.Status,
				Plantel:  at.Plantel,
				Duration: at.Duration.String(),
			})
		}
	}

	s.render(writer, s.views.admin, status, view)
}

// clientKey identifies the client for login throttling. RealIP has already
// replaced RemoteAddr when a proxy header is present.
func clientKey(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
