package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/resume-optimizer/internal/agent"
	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/contract"
	"github.com/jonathan/resume-optimizer/internal/knowledge"
	"github.com/jonathan/resume-optimizer/internal/pipeline"
)

// ErrBusy is returned while a run is in progress.
var ErrBusy = errors.New("a run is already in progress")

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error  string   `json:"error"`
	Stage  string   `json:"stage,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		inputErr      *pipeline.InputError
		emptyErr      *knowledge.EmptyDocumentError
		toolErr       *agent.ToolError
		serviceErr    *agent.ServiceError
		schemaErr     *contract.SchemaError
	)

	switch {
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.As(err, &validationErr), errors.As(err, &inputErr), errors.As(err, &emptyErr):
		return http.StatusBadRequest
	case errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &toolErr), errors.As(err, &serviceErr), errors.As(err, &schemaErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody describes err for clients.
func errorBody(err error) ErrorBody {
	body := ErrorBody{Error: err.Error()}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		body.Stage = stageErr.Stage
	}

	var inputErr *pipeline.InputError
	var validationErr *ErrValidation
	switch {
	case errors.As(err, &inputErr):
		body.Fields = inputErr.Fields
	case errors.As(err, &validationErr):
		body.Fields = []string{validationErr.Field}
	}
	return body
}
