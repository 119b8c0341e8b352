package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/download"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	BADGE_FILENAME = "credencial.pdf"

	STATUS_PENDING = "Generando gafetes..."
	STATUS_SUCCESS = "Listo ✅ Se descargó tu gafete."
	ERROR_PREFIX   = "Error al registrar. "
	MSG_TIMEOUT    = "El servidor tardó demasiado en responder, intenta de nuevo en unos minutos."
	MSG_NETWORK    = "Error de red, revisa tu conexión."
	MSG_REVIEW     = "Revisa los campos obligatorios: "
)

type Registrar interface {
	Register(ctx context.Context, payload any) api.Result
}

type SubmissionCounter interface {
	CountSubmission(outcome string)
}

// Attempt is the audit trail of one submission.
type Attempt struct {
	ID        uuid.UUID
	Outcome   string
	Status    int
	Plantel   string
	Duration  time.Duration
	CreatedAt time.Time
}

type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Outcome is what the form shows after a submission. Saved is set only when
// the badge was delivered, Failed only when the status is an error.
type Outcome struct {
	Status string
	Failed bool
	Saved  string
	Result api.Result
}

type Submitter struct {
	client   Registrar
	logger   *zap.Logger
	counter  SubmissionCounter
	attempts AttemptRecorder
}

func NewSubmitter(client Registrar, logger *zap.Logger, counter SubmissionCounter, attempts AttemptRecorder) *Submitter {
	return &Submitter{client: client, logger: logger, counter: counter, attempts: attempts}
}

// Submit normalizes and validates the form, posts it and either hands the
// badge to saver or returns an error status. Never both.
func (s *Submitter) Submit(ctx context.Context, raw Registration, saver download.Saver) Outcome {
	reg := Normalize(raw)

	if err := Validate(reg); err != nil {
		var missing *MissingFieldsError
		if errors.As(err, &missing) {
			return Outcome{Status: MSG_REVIEW + strings.Join(missing.Fields, ", "), Failed: true}
		}
		return Outcome{Status: ERROR_PREFIX + err.Error(), Failed: true}
	}

	start := time.Now()
	res := s.client.Register(ctx, reg)
	kind := api.Kind(res)

	out := Outcome{Result: res}
	if badge, ok := res.(api.Badge); ok {
		if err := saver.Save(BADGE_FILENAME, api.PDF_CONTENT_TYPE, badge.Data); err != nil {
			s.logger.Error("Badge delivery failed", zap.Error(fmt.Errorf("saver.Save failed: %w", err)))
			kind = "save_failed"
			out.Status = ERROR_PREFIX + "No se pudo guardar el gafete."
			out.Failed = true
		} else {
			out.Status = STATUS_SUCCESS
			out.Saved = BADGE_FILENAME
		}
	} else {
		out.Status = StatusMessage(res)
		out.Failed = true
		s.logger.Info("Registration rejected", zap.String("outcome", kind), zap.String("status", out.Status))
	}

	if s.counter != nil {
		s.counter.CountSubmission(kind)
	}
	s.record(ctx, reg, res, kind, time.Since(start))

	return out
}

func (s *Submitter) record(ctx context.Context, reg Registration, res api.Result, kind string, d time.Duration) {
	if s.attempts == nil {
		return
	}

	a := Attempt{
		ID:        uuid.New(),
		Outcome:   kind,
		Status:    resultStatus(res),
		Plantel:   reg.Plantel,
		Duration:  d,
		CreatedAt: time.Now(),
	}
	// The user already has an answer, the audit trail must not change it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.attempts.RecordAttempt(ctx, a); err != nil {
		s.logger.Warn("Attempt was not recorded", zap.Error(err))
	}
}

func resultStatus(res api.Result) int {
	switch v := res.(type) {
	case api.Badge:
		return 200
	case api.FieldErrors:
		return v.Status
	case api.RawMessage:
		return v.Status
	default:
		return 0
	}
}

// StatusMessage turns a failed result into the text shown under the form.
func StatusMessage(res api.Result) string {
	var msg string
	switch v := res.(type) {
	case api.Badge:
		return STATUS_SUCCESS
	case *api.TransportError:
		if v.Kind == api.TransportTimeout {
			msg = MSG_TIMEOUT
		} else {
			msg = MSG_NETWORK
		}
	case api.FieldErrors:
		msg = v.String()
		if strings.TrimSpace(msg) == "" {
			msg = fmt.Sprintf("Error %d", v.Status)
		}
	case api.RawMessage:
		msg = v.Text
		if strings.TrimSpace(msg) == "" {
			msg = fmt.Sprintf("Error %d", v.Status)
		}
	default:
		msg = "Error desconocido"
	}
	return ERROR_PREFIX + msg
}
