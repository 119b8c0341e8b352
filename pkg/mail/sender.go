package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/Geniuskaa/maraton_registration/internal/config"
	"github.com/Geniuskaa/maraton_registration/pkg/api"
)

const (
	REPORT_SUBJECT = "Maratón LMA: reporte de participantes %s"
)

var (
	ErrNotConfigured = errors.New("mail host is not configured")
	ErrNoRecipients  = errors.New("no report recipients configured")
)

var reportTemplate = template.Must(template.New("report").Parse(`<html><body>
<p>Reporte de participantes generado el {{.Generated}}.</p>
<p>Se adjunta el archivo <b>{{.Filename}}</b> ({{.Size}} bytes).</p>
</body></html>`))

type reportData struct {
	Generated string
	Filename  string
	Size      int
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	hostname string
	port     string
	username string
	password string
	to       []string
	logger   *zap.Logger
	send     sendFunc
	now      func() time.Time
}

func NewSender(conf config.Mail, logger *zap.Logger) *Sender {
	return &Sender{
		hostname: conf.Hostname,
		port:     conf.Port,
		username: conf.Username,
		password: conf.Password,
		to:       conf.ReportTo,
		logger:   logger,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

// SendReport mails the exported file to every configured recipient and
// returns how many there were.
func (s *Sender) SendReport(ctx context.Context, f *api.File) (int, error) {
	if s.hostname == "" {
		return 0, ErrNotConfigured
	}
	if len(s.to) == 0 {
		return 0, ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msg, err := s.buildMessage(f)
	if err != nil {
		return 0, fmt.Errorf("buildMessage failed: %w", err)
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.hostname)
	}

	addr := net.JoinHostPort(s.hostname, s.port)
	if err := s.send(addr, auth, s.username, s.to, msg); err != nil {
		s.logger.Error("SendReport failed", zap.Error(err))
		return 0, fmt.Errorf("smtp.SendMail failed: %w", err)
	}

	s.logger.Info("Report mailed", zap.Strings("to", s.to), zap.String("file", f.Name))
	return len(s.to), nil
}

func (s *Sender) buildMessage(f *api.File) ([]byte, error) {
	now := s.now()

	var h mail.Header
	h.SetDate(now)
	h.SetSubject(fmt.Sprintf(REPORT_SUBJECT, now.Format("02/01/2006")))
	h.SetAddressList("From", []*mail.Address{{Name: "Maratón LMA", Address: s.username}})

	to := make([]*mail.Address, 0, len(s.to))
	for _, addr := range s.to {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)

	buf := new(bytes.Buffer)
	mw, err := mail.CreateWriter(buf, h)
	if err != nil {
		return nil, fmt.Errorf("mail.CreateWriter failed: %w", err)
	}

	var th mail.InlineHeader
	th.Set("Content-Type", "text/html; charset=utf-8")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("mw.CreateSingleInline failed: %w", err)
	}
	data := reportData{Generated: now.Format("02/01/2006 15:04"), Filename: f.Name, Size: len(f.Data)}
	if err := reportTemplate.Execute(tw, data); err != nil {
		return nil, fmt.Errorf("template.Execute failed: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	var ah mail.AttachmentHeader
	contentType := f.ContentType
	if contentType == "" {
		contentType = "text/csv; charset=utf-8"
	}
	ah.Set("Content-Type", contentType)
	ah.SetFilename(f.Name)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("mw.CreateAttachment failed: %w", err)
	}
	if _, err := aw.Write(f.Data); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
