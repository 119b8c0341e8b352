package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/download"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
)

const (
	ALERT_LIST_STATUS   = "Error listando participantes"
	ALERT_LIST_NETWORK  = "Error de red listando participantes"
	ALERT_CSV_STATUS    = "Error al descargar CSV: %s"
	ALERT_CSV_NETWORK   = "Error al descargar CSV (red)"
	ALERT_EMPTY_QUERY   = "Escribe un folio o id"
	ALERT_REPORT_FAILED = "No se pudo enviar el reporte: %s"
	ALERT_REPORT_SENT   = "Reporte enviado a %d destinatario(s)"

	CSV_CONTENT_TYPE  = "text/csv;charset=utf-8"
	XLSX_CONTENT_TYPE = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	XLSX_FILENAME     = "participantes.xlsx"
)

// ErrSuperseded is returned by a Load that a newer Load replaced before it
// could finish. Such a load never touches the displayed list.
var ErrSuperseded = errors.New("load superseded by a newer one")

type Backend interface {
	ListParticipants(ctx context.Context) ([]api.ParticipantRecord, error)
	ExportCSV(ctx context.Context) (*api.File, error)
	ReprintURL(query string) (string, error)
	Stats(ctx context.Context) (*api.Stats, error)
}

// Alerter shows a blocking message to the admin.
type Alerter interface {
	Alert(msg string)
}

// Opener opens an address in a new browsing context.
type Opener interface {
	Open(url string) error
}

type LoadCounter interface {
	CountLoad(outcome string)
}

type ReportMailer interface {
	SendReport(ctx context.Context, f *api.File) (int, error)
}

type WorkbookBuilder func(rows []api.ParticipantRecord, loc *time.Location) ([]byte, error)

// Row is a participant ready for display.
type Row struct {
	ID        int64
	Clave     string
	Plantel   string
	FullName  string
	ChildName string
	Grado     string
	Role      string
	RoleLabel string
	Created   string
}

type Panel struct {
	backend  Backend
	logger   *zap.Logger
	loc      *time.Location
	counter  LoadCounter
	mailer   ReportMailer
	workbook WorkbookBuilder

	mu         sync.Mutex
	rows       []api.ParticipantRecord
	loadedAt   time.Time
	generation uint64
	cancelPrev context.CancelFunc
}

type PanelOption func(*Panel)

func WithLoadCounter(c LoadCounter) PanelOption {
	return func(p *Panel) { p.counter = c }
}

func WithReportMailer(m ReportMailer) PanelOption {
	return func(p *Panel) { p.mailer = m }
}

func WithWorkbook(b WorkbookBuilder) PanelOption {
	return func(p *Panel) { p.workbook = b }
}

func NewPanel(backend Backend, logger *zap.Logger, loc *time.Location, opts ...PanelOption) *Panel {
	p := &Panel{backend: backend, logger: logger, loc: loc, rows: []api.ParticipantRecord{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load replaces the displayed list with the backend's current one. A newer
// Load cancels this one; failures alert and keep the previous list.
func (p *Panel) Load(ctx context.Context, alerter Alerter) error {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	if p.cancelPrev != nil {
		p.cancelPrev()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancelPrev = cancel
	p.mu.Unlock()
	defer cancel()

	rows, err := p.backend.ListParticipants(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		p.count("superseded")
		return ErrSuperseded
	}
	p.cancelPrev = nil

	if err != nil {
		var te *api.TransportError
		if errors.As(err, &te) {
			p.count("network")
			alerter.Alert(ALERT_LIST_NETWORK)
		} else {
			p.count("status")
			alerter.Alert(ALERT_LIST_STATUS)
		}
		p.logger.Warn("Participant list was not loaded", zap.Error(err))
		return fmt.Errorf("Load failed: %w", err)
	}

	p.rows = rows
	p.loadedAt = time.Now()
	p.count("ok")
	p.logger.Info("Participant list loaded", zap.Int("rows", len(rows)))
	return nil
}

func (p *Panel) count(outcome string) {
	if p.counter != nil {
		p.counter.CountLoad(outcome)
	}
}

// Records returns a copy of the displayed list.
func (p *Panel) Records() []api.ParticipantRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := make([]api.ParticipantRecord, len(p.rows))
	copy(res, p.rows)
	return res
}

func (p *Panel) LoadedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadedAt
}

// Rows returns the displayed list formatted for the table.
func (p *Panel) Rows() []Row {
	records := p.Records()
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row{
			ID:        r.ID,
			Clave:     r.Clave,
			Plantel:   r.Plantel,
			FullName:  r.FullName,
			ChildName: r.ChildName,
			Grado:     r.Grado,
			Role:      r.Role,
			RoleLabel: registration.RoleLabel(r.Role),
			Created:   FormatDateTime(r.CreatedAt, p.loc),
		})
	}
	return rows
}

// ExportCSV downloads the backend CSV and hands it to saver.
func (p *Panel) ExportCSV(ctx context.Context, saver download.Saver, alerter Alerter) error {
	f, err := p.backend.ExportCSV(ctx)
	if err != nil {
		alerter.Alert(csvAlert(err))
		p.logger.Warn("CSV export failed", zap.Error(err))
		return fmt.Errorf("ExportCSV failed: %w", err)
	}

	if err := saver.Save(f.Name, CSV_CONTENT_TYPE, f.Data); err != nil {
		return fmt.Errorf("saver.Save failed: %w", err)
	}
	return nil
}

func csvAlert(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) {
		text := se.Body
		if text == "" {
			text = fmt.Sprint(se.Status)
		}
		return fmt.Sprintf(ALERT_CSV_STATUS, text)
	}
	return ALERT_CSV_NETWORK
}

// ExportXLSX builds a workbook from the displayed list, no request is made.
func (p *Panel) ExportXLSX(saver download.Saver) error {
	if p.workbook == nil {
		return errors.New("ExportXLSX: no workbook builder configured")
	}

	data, err := p.workbook(p.Records(), p.loc)
	if err != nil {
		return fmt.Errorf("ExportXLSX failed: %w", err)
	}
	if err := saver.Save(XLSX_FILENAME, XLSX_CONTENT_TYPE, data); err != nil {
		return fmt.Errorf("saver.Save failed: %w", err)
	}
	return nil
}

// Reprint opens the backend badge for a folio or numeric id. An empty query
// alerts without any request.
func (p *Panel) Reprint(query string, opener Opener, alerter Alerter) error {
	u, err := p.backend.ReprintURL(query)
	if err != nil {
		if errors.Is(err, api.ErrEmptyQuery) {
			alerter.Alert(ALERT_EMPTY_QUERY)
		}
		return fmt.Errorf("Reprint failed: %w", err)
	}

	if err := opener.Open(u); err != nil {
		return fmt.Errorf("opener.Open failed: %w", err)
	}
	return nil
}

func (p *Panel) Stats(ctx context.Context) (*api.Stats, error) {
	stats, err := p.backend.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("Stats failed: %w", err)
	}
	return stats, nil
}

// MailReport exports the CSV and mails it to the configured organizers.
func (p *Panel) MailReport(ctx context.Context, alerter Alerter) error {
	if p.mailer == nil {
		return errors.New("MailReport: no mailer configured")
	}

	f, err := p.backend.ExportCSV(ctx)
	if err != nil {
		alerter.Alert(csvAlert(err))
		return fmt.Errorf("MailReport failed: %w", err)
	}

	sent, err := p.mailer.SendReport(ctx, f)
	if err != nil {
		alerter.Alert(fmt.Sprintf(ALERT_REPORT_FAILED, err))
		p.logger.Error("Report mail failed", zap.Error(err))
		return fmt.Errorf("MailReport failed: %w", err)
	}

	alerter.Alert(fmt.Sprintf(ALERT_REPORT_SENT, sent))
	return nil
}
