// Package contract validates raw stage output against each artifact's
// contract and normalizes it into one canonical record shape.
package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/llm"
	"github.com/jonathan/resume-optimizer/internal/schemas"
	"github.com/jonathan/resume-optimizer/internal/types"
)

// SchemaVersion is stamped on every artifact written under these contracts.
const SchemaVersion = "1"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Contract describes the output a stage must produce.
type Contract struct {
	Stage    string
	Artifact string
	Kind     artifacts.Kind
}

// Record is a validated, canonical stage output.
type Record struct {
	Contract Contract
	// Content is canonical JSON for structured artifacts and trimmed
	// Markdown for text artifacts.
	Content []byte
	// Value holds the decoded record for structured artifacts.
	Value any
}

// Artifact converts the record into a storable artifact.
func (r *Record) Artifact() artifacts.Artifact {
	return artifacts.New(r.Contract.Artifact, r.Contract.Stage, SchemaVersion, r.Contract.Kind, r.Content)
}

// FieldError is a single contract violation.
type FieldError struct {
	Field   string
	Message string
}

// SchemaError reports stage output that does not satisfy its contract.
type SchemaError struct {
	Stage    string
	Artifact string
	Fields   []FieldError
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s output does not satisfy the %s contract", e.Stage, e.Artifact)
	for i, f := range e.Fields {
		sep := ", "
		if i == 0 {
			sep = ": "
		}
		fmt.Fprintf(&sb, "%s%s (%s)", sep, f.Field, f.Message)
	}
	return sb.String()
}

// ForArtifact returns the contract for an artifact name.
func ForArtifact(name string) (Contract, error) {
	c, ok := registry[name]
	if !ok {
		return Contract{}, fmt.Errorf("no contract registered for artifact %q", name)
	}
	return c, nil
}

var registry = map[string]Contract{
	artifacts.JobAnalysis:        {Stage: "job-analysis", Artifact: artifacts.JobAnalysis, Kind: artifacts.KindJSON},
	artifacts.ResumeOptimization: {Stage: "resume-optimization", Artifact: artifacts.ResumeOptimization, Kind: artifacts.KindJSON},
	artifacts.CompanyResearch:    {Stage: "company-research", Artifact: artifacts.CompanyResearch, Kind: artifacts.KindJSON},
	artifacts.OptimizedResume:    {Stage: "resume-generation", Artifact: artifacts.OptimizedResume, Kind: artifacts.KindText},
	artifacts.FinalReport:        {Stage: "report-generation", Artifact: artifacts.FinalReport, Kind: artifacts.KindText},
}

// CheckSchemas reports JSON contracts without an embedded schema and
// schemas without a contract.
func CheckSchemas() error {
	return checkSchemas(registry, schemas.Names())
}

func checkSchemas(contracts map[string]Contract, names []string) error {
	embedded := make(map[string]bool, len(names))
	for _, n := range names {
		embedded[n] = true
	}

	var problems []string
	for _, n := range artifacts.Names {
		c, ok := contracts[n]
		if !ok || c.Kind != artifacts.KindJSON {
			continue
		}
		if !embedded[n] {
			problems = append(problems, fmt.Sprintf("contract %s has no schema", n))
		}
		delete(embedded, n)
	}
	for _, n := range names {
		if embedded[n] {
			problems = append(problems, fmt.Sprintf("schema %s has no contract", n))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// WithStage returns a copy of the contract bound to a different stage name.
func (c Contract) WithStage(stage string) Contract {
	c.Stage = stage
	return c
}

// Validate checks raw output and returns the canonical record. It has no
// side effects.
func (c Contract) Validate(raw string) (*Record, error) {
	if c.Kind == artifacts.KindText {
		return c.validateText(raw)
	}
	return c.validateJSON(raw)
}

func (c Contract) validateText(raw string) (*Record, error) {
	text := llm.StripCodeFence(raw)
	if text == "" {
		return nil, c.schemaError(FieldError{Field: "(root)", Message: "output is empty"})
	}
	return &Record{Contract: c, Content: []byte(text + "\n")}, nil
}

func (c Contract) validateJSON(raw string) (*Record, error) {
	body := llm.CleanJSONBlock(raw)
	if body == "" {
		return nil, c.schemaError(FieldError{Field: "(root)", Message: "output is empty"})
	}

	if err := schemas.Validate(c.Artifact, []byte(body)); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			fields := make([]FieldError, len(ve.Errors))
			for i, fe := range ve.Errors {
				fields[i] = FieldError{Field: fe.Field, Message: fe.Message}
			}
			return nil, c.schemaError(fields...)
		}
		return nil, fmt.Errorf("validate %s: %w", c.Artifact, err)
	}

	value, err := c.decode([]byte(body))
	if err != nil {
		return nil, c.schemaError(FieldError{Field: "(root)", Message: err.Error()})
	}

	if err := validate.Struct(value); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]FieldError, len(verrs))
			for i, fe := range verrs {
				fields[i] = FieldError{Field: fe.Namespace(), Message: fmt.Sprintf("failed %s", fe.Tag())}
			}
			return nil, c.schemaError(fields...)
		}
		return nil, fmt.Errorf("validate %s: %w", c.Artifact, err)
	}

	rec := &Record{Contract: c, Value: value}
	if err := rec.encode(); err != nil {
		return nil, err
	}
	return rec, nil
}

type normalizer interface {
	Normalize()
}

func (r *Record) encode() error {
	if n, ok := r.Value.(normalizer); ok {
		n.Normalize()
	}
	canonical, err := json.MarshalIndent(r.Value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.Contract.Artifact, err)
	}
	r.Content = canonical
	return nil
}

// AddSources records urls the stage consulted on a company research record
// and re-encodes its content. Other records are left unchanged.
func (r *Record) AddSources(urls []string) error {
	research, ok := r.Value.(*types.CompanyResearch)
	if !ok || len(urls) == 0 {
		return nil
	}
	research.AddSources(urls...)
	return r.encode()
}

func (c Contract) decode(body []byte) (any, error) {
	var target any
	switch c.Artifact {
	case artifacts.JobAnalysis:
		target = &types.JobRequirements{}
	case artifacts.ResumeOptimization:
		target = &types.ResumeOptimization{}
	case artifacts.CompanyResearch:
		target = &types.CompanyResearch{}
	default:
		return nil, fmt.Errorf("no record type for artifact %q", c.Artifact)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(target); err != nil {
		return nil, err
	}
	return target, nil
}

func (c Contract) schemaError(fields ...FieldError) *SchemaError {
	return &SchemaError{Stage: c.Stage, Artifact: c.Artifact, Fields: fields}
}
