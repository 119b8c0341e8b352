package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestClassify_PdfSuccess(t *testing.T) {
	res := Classify(200, "application/pdf", []byte("%PDF-1.4"))

	badge, ok := res.(Badge)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, []byte("%PDF-1.4"), badge.Data)
}

func TestClassify_PdfWithParams(t *testing.T) {
	res := Classify(201, "application/pdf; charset=binary", []byte("%PDF"))
	assert.IsType(t, Badge{}, res)
}

func TestClassify_PdfWithErrorStatus(t *testing.T) {
	res := Classify(500, "application/pdf", []byte("oops"))

	raw, ok := res.(RawMessage)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "oops", raw.Text)
}

func TestClassify_SuccessWithoutPdf(t *testing.T) {
	res := Classify(200, "application/json", []byte(`{"detail":"queued"}`))

	fields, ok := res.(FieldErrors)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "detail: queued", fields.String())
}

func TestClassify_FieldErrors(t *testing.T) {
	res := Classify(400, "application/json", []byte(`{"full_name": ["This field is required."]}`))

	fields, ok := res.(FieldErrors)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, 400, fields.Status)
	assert.Contains(t, fields.String(), "full_name: This field is required.")
}

func TestClassify_FieldErrorsKeepOrder(t *testing.T) {
	body := `{"role": ["Not a valid choice.", "Too long."], "grado": "Requerido para ALUMNO.", "code": 7}`
	res := Classify(400, "application/json", []byte(body))

	fields, ok := res.(FieldErrors)
	require.True(t, ok)
	assert.Equal(t,
		"role: Not a valid choice., Too long. • grado: Requerido para ALUMNO. • code: 7",
		fields.String())
}

func TestClassify_JsonString(t *testing.T) {
	res := Classify(409, "application/json", []byte(`"Folio duplicado"`))

	raw, ok := res.(RawMessage)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "Folio duplicado", raw.Text)
}

func TestClassify_HtmlVerbatim(t *testing.T) {
	html := "<html>Internal Server Error</html>"
	res := Classify(500, "text/html", []byte(html))

	raw, ok := res.(RawMessage)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, html, raw.Text)
	assert.Equal(t, 500, raw.Status)
}

func TestClassify_EmptyBody(t *testing.T) {
	res := Classify(502, "", nil)

	raw, ok := res.(RawMessage)
	require.True(t, ok, "got %T", res)
	assert.Empty(t, raw.Text)
	assert.Equal(t, 502, raw.Status)
}

func TestClassify_Array(t *testing.T) {
	res := Classify(400, "application/json", []byte(`["a", "b"]`))

	fields, ok := res.(FieldErrors)
	require.True(t, ok)
	assert.Equal(t, "0: a • 1: b", fields.String())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, TransportTimeout, ClassifyTransport(context.DeadlineExceeded).Kind)
	assert.Equal(t, TransportTimeout, ClassifyTransport(fmt.Errorf("wrapped: %w", timeoutErr{})).Kind)
	assert.Equal(t, TransportNetwork, ClassifyTransport(errors.New("connection refused")).Kind)

	te := &TransportError{Kind: TransportTimeout, Err: errors.New("x")}
	assert.Same(t, te, ClassifyTransport(fmt.Errorf("again: %w", te)))
}

// Whatever the body, a non-2xx status never yields a badge.
func TestClassify_NeverBadgeOnFailureStatus(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.OneOf(rapid.IntRange(100, 199), rapid.IntRange(300, 599)).Draw(rt, "status")
		body := rapid.SliceOf(rapid.Byte()).Draw(rt, "body")

		res := Classify(status, "application/pdf", body)
		if _, ok := res.(Badge); ok {
			rt.Fatalf("status %d classified as badge", status)
		}
	})
}
