package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem implements RFC 9457
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]any `json:"-"`

	Log error `json:"-"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func (p *Problem) Unwrap() error {
	return p.Log
}

// MarshalJSON flattens extensions into the root object. Standard members win
// over extensions of the same name.
func (p *Problem) MarshalJSON() ([]byte, error) {
	type Alias Problem

	data := make(map[string]any, len(p.Extensions)+5)
	for k, v := range p.Extensions {
		data[k] = v
	}

	stdJSON, err := json.Marshal(Alias(*p))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stdJSON, &data); err != nil {
		return nil, err
	}

	return json.Marshal(data)
}

type ProblemOption func(*Problem)

// NewError creates a generic Problem
func NewError(status int, title, detail string, opts ...ProblemOption) *Problem {
	p := &Problem{
		Type:       "about:blank",
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: make(map[string]any),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithExtension adds a custom member to the response
func WithExtension(key string, value any) ProblemOption {
	return func(p *Problem) {
		p.Extensions[key] = value
	}
}

// WithLog attaches an internal error for server-side logging
func WithLog(err error) ProblemOption {
	return func(p *Problem) {
		p.Log = err
	}
}

func WithType(uri string) ProblemOption {
	return func(p *Problem) {
		p.Type = uri
	}
}

func WithInstance(path string) ProblemOption {
	return func(p *Problem) {
		p.Instance = path
	}
}

func ValidationError(fields map[string]string) *Problem {
	return NewError(
		http.StatusBadRequest,
		"Validation Error",
		"One or more fields failed validation",
		WithType("urn:aios:problem:validation"),
		WithExtension("errors", fields),
	)
}

func BadRequestError(detail string, opts ...ProblemOption) *Problem {
	return NewError(http.StatusBadRequest, "Bad Request", detail, opts...)
}

func NotFoundError(detail string) *Problem {
	return NewError(http.StatusNotFound, "Not Found", detail)
}

func UnauthorizedError(detail string) *Problem {
	return NewError(http.StatusUnauthorized, "Unauthorized", detail)
}

func RateLimitError(detail string) *Problem {
	return NewError(http.StatusTooManyRequests, "Too Many Requests", detail)
}

func InternalError(detail string, err error) *Problem {
	return NewError(http.StatusInternalServerError, "Internal Server Error", detail, WithLog(err))
}

// UpstreamError is a 502 for failures of the AI providers behind the service.
func UpstreamError(detail string, err error, opts ...ProblemOption) *Problem {
	opts = append([]ProblemOption{WithType("urn:aios:problem:upstream"), WithLog(err)}, opts...)
	return NewError(http.StatusBadGateway, "Bad Gateway", detail, opts...)
}
