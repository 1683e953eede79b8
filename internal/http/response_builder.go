package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResponseBuilder provides a fluent API for writing API envelopes.
type ResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		body:       envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.body.Data = data
	return b
}

// RawData embeds an already encoded JSON value, as served from the cache.
func (b *ResponseBuilder) RawData(raw []byte) *ResponseBuilder {
	b.body.Data = json.RawMessage(raw)
	return b
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.body.Message = msg
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Fail turns the response into an error envelope.
func (b *ResponseBuilder) Fail(statusCode int, message, detail string) *ResponseBuilder {
	b.statusCode = statusCode
	b.body = envelope{Success: false, Message: message, Error: detail}
	return b
}

func (b *ResponseBuilder) Write(c *gin.Context) {
	for name, value := range b.headers {
		c.Header(name, value)
	}
	c.JSON(b.statusCode, b.body)
}

// WriteHTTP is used outside the gin engine, e.g. by the rate limiter.
func (b *ResponseBuilder) WriteHTTP(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}
