package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Geniuskaa/maraton_registration/pkg/api"
)

type fakeRegistrar struct {
	res   api.Result
	calls int
	got   any
}

func (f *fakeRegistrar) Register(ctx context.Context, payload any) api.Result {
	f.calls++
	f.got = payload
	return f.res
}

type spySaver struct {
	names []string
	data  [][]byte
	err   error
}

func (s *spySaver) Save(name, contentType string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.names = append(s.names, name)
	s.data = append(s.data, data)
	return nil
}

type countingCounter map[string]int

func (c countingCounter) CountSubmission(outcome string) { c[outcome]++ }

type memoryAttempts struct {
	attempts []Attempt
}

func (m *memoryAttempts) RecordAttempt(ctx context.Context, a Attempt) error {
	m.attempts = append(m.attempts, a)
	return nil
}

var validForm = Registration{
	FullName: " Ana Pérez ",
	Plantel:  "Secundaria",
	Grado:    "2do Grado Secundaria",
	Role:     "abuelita ",
}

func TestSubmit_Badge(t *testing.T) {
	client := &fakeRegistrar{res: api.Badge{Data: []byte("%PDF"), ContentType: "application/pdf"}}
	saver := &spySaver{}
	counter := countingCounter{}
	attempts := &memoryAttempts{}

	out := NewSubmitter(client, zap.NewNop(), counter, attempts).Submit(context.Background(), validForm, saver)

	assert.False(t, out.Failed)
	assert.Equal(t, STATUS_SUCCESS, out.Status)
	assert.Equal(t, []string{"credencial.pdf"}, saver.names)
	assert.Equal(t, "%PDF", string(saver.data[0]))
	assert.Equal(t, 1, counter["badge"])

	sent, ok := client.got.(Registration)
	require.True(t, ok)
	assert.Equal(t, "ABUELITA", sent.Role)
	assert.Equal(t, "Ana Pérez", sent.FullName)

	require.Len(t, attempts.attempts, 1)
	assert.Equal(t, "badge", attempts.attempts[0].Outcome)
	assert.Equal(t, 200, attempts.attempts[0].Status)
}

func TestSubmit_FieldErrors(t *testing.T) {
	client := &fakeRegistrar{res: api.FieldErrors{Status: 400, Fields: []api.Field{
		{Name: "full_name", Values: []string{"This field is required."}},
	}}}
	saver := &spySaver{}

	out := NewSubmitter(client, zap.NewNop(), nil, nil).Submit(context.Background(), validForm, saver)

	assert.True(t, out.Failed)
	assert.Contains(t, out.Status, "full_name: This field is required.")
	assert.Empty(t, saver.names)
}

func TestSubmit_HtmlError(t *testing.T) {
	html := "<html>Internal Server Error</html>"
	client := &fakeRegistrar{res: api.RawMessage{Status: 500, Text: html}}
	saver := &spySaver{}

	out := NewSubmitter(client, zap.NewNop(), nil, nil).Submit(context.Background(), validForm, saver)

	assert.True(t, out.Failed)
	assert.Equal(t, ERROR_PREFIX+html, out.Status)
	assert.Empty(t, saver.names)
}

func TestSubmit_TransportErrors(t *testing.T) {
	timeout := NewSubmitter(&fakeRegistrar{res: &api.TransportError{Kind: api.TransportTimeout, Err: context.DeadlineExceeded}},
		zap.NewNop(), nil, nil).Submit(context.Background(), validForm, &spySaver{})
	network := NewSubmitter(&fakeRegistrar{res: &api.TransportError{Kind: api.TransportNetwork, Err: errors.New("refused")}},
		zap.NewNop(), nil, nil).Submit(context.Background(), validForm, &spySaver{})

	assert.True(t, timeout.Failed)
	assert.True(t, network.Failed)
	assert.Contains(t, timeout.Status, MSG_TIMEOUT)
	assert.Contains(t, network.Status, MSG_NETWORK)
	assert.NotEqual(t, timeout.Status, network.Status)
}

func TestSubmit_MissingFieldsNeverSent(t *testing.T) {
	client := &fakeRegistrar{}
	out := NewSubmitter(client, zap.NewNop(), nil, nil).Submit(context.Background(),
		Registration{FullName: "   ", Plantel: "Primaria", Grado: "1er Grado Primaria", Role: "ABUELO"}, &spySaver{})

	assert.True(t, out.Failed)
	assert.Equal(t, MSG_REVIEW+"full_name", out.Status)
	assert.Zero(t, client.calls)
}

func TestSubmit_SaveFailure(t *testing.T) {
	client := &fakeRegistrar{res: api.Badge{Data: []byte("%PDF")}}
	counter := countingCounter{}

	out := NewSubmitter(client, zap.NewNop(), counter, nil).Submit(context.Background(), validForm,
		&spySaver{err: errors.New("disk full")})

	assert.True(t, out.Failed)
	assert.Empty(t, out.Saved)
	assert.Equal(t, 1, counter["save_failed"])
}

func TestStatusMessage_EmptyBodies(t *testing.T) {
	assert.Equal(t, ERROR_PREFIX+"Error 502", StatusMessage(api.RawMessage{Status: 502}))
	assert.Equal(t, ERROR_PREFIX+"Error 400", StatusMessage(api.FieldErrors{Status: 400}))
}
