package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

const (
	PDF_CONTENT_TYPE = "application/pdf"

	fieldSeparator = " • "
	valueSeparator = ", "
)

// Result is what a register call decodes to. Exactly one of Badge,
// FieldErrors, RawMessage or *TransportError.
type Result interface {
	isResult()
}

type Badge struct {
	Data        []byte
	ContentType string
	// Filename suggested by the backend, the form saves under its own name.
	Filename string
}

// Field is a single entry of a backend validation object. Order follows the
// response body.
type Field struct {
	Name   string
	Values []string
}

type FieldErrors struct {
	Status int
	Fields []Field
}

type RawMessage struct {
	Status int
	Text   string
}

type TransportKind int

const (
	TransportNetwork TransportKind = iota + 1
	TransportTimeout
)

func (k TransportKind) String() string {
	switch k {
	case TransportTimeout:
		return "timeout"
	case TransportNetwork:
		return "network"
	default:
		return "unknown"
	}
}

type TransportError struct {
	Kind TransportKind
	Err  error
}

func (Badge) isResult()           {}
func (FieldErrors) isResult()     {}
func (RawMessage) isResult()      {}
func (*TransportError) isResult() {}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// String renders the fields as "field: v1, v2 • other: v".
func (f FieldErrors) String() string {
	parts := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field.Name, strings.Join(field.Values, valueSeparator)))
	}
	return strings.Join(parts, fieldSeparator)
}

// Kind names the result for logs and metric labels.
func Kind(r Result) string {
	switch v := r.(type) {
	case Badge:
		return "badge"
	case FieldErrors:
		return "field_errors"
	case RawMessage:
		return "raw_message"
	case *TransportError:
		return v.Kind.String()
	default:
		return "unknown"
	}
}

// Classify decodes a finished response into a Result. The body is taken as
// raw bytes: a PDF only counts when the status is 2xx and the declared
// content type says so, everything else is an error body.
func Classify(status int, contentType string, body []byte) Result {
	if status >= 200 && status < 300 && strings.Contains(contentType, PDF_CONTENT_TYPE) {
		return Badge{Data: body, ContentType: contentType}
	}

	text := string(body)

	fields, str, err := decodeErrorBody(body)
	switch {
	case err != nil:
		return RawMessage{Status: status, Text: text}
	case fields != nil:
		return FieldErrors{Status: status, Fields: fields}
	default:
		return RawMessage{Status: status, Text: str}
	}
}

// ClassifyTransport maps a failed round trip to its kind. Anything that says
// it timed out is a timeout, everything else counts as a network failure.
func ClassifyTransport(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	return &TransportError{Kind: TransportNetwork, Err: err}
}

func classifyResponse(resp *http.Response) Result {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyTransport(err)
	}
	return Classify(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// decodeErrorBody returns the ordered fields when the body is a JSON object
// or array, the string when it is a JSON string, and an error when the body
// is not JSON at all (HTML pages, plain text) or is a bare scalar.
func decodeErrorBody(body []byte) ([]Field, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, "", errors.New("not json")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, "", err
		}
		return nil, s, nil
	case '{':
		fields, err := decodeObject(trimmed)
		return fields, "", err
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", err
		}
		fields := make([]Field, 0, len(items))
		for i, item := range items {
			fields = append(fields, Field{Name: fmt.Sprint(i), Values: renderValue(item)})
		}
		return fields, "", nil
	default:
		return nil, "", errors.New("scalar json")
	}
}

func decodeObject(data []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	fields := make([]Field, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Values: renderValue(raw)})
	}
	return fields, nil
}

// renderValue flattens one level of arrays, strings lose their quotes and
// anything else keeps its JSON text.
func renderValue(raw json.RawMessage) []string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		values := make([]string, 0, len(list))
		for _, item := range list {
			values = append(values, scalarText(item))
		}
		return values
	}
	return []string{scalarText(raw)}
}

func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
