// Package types provides type definitions for the records passed between pipeline stages.
//
//nolint:revive // types is a standard Go package name pattern
package types

// RunInputs are the caller-supplied parameters of a single optimization run.
// They are immutable once the run starts.
type RunInputs struct {
	JobURL       string `json:"job_url" validate:"required,url,startswith=http"`
	CompanyName  string `json:"company_name" validate:"required"`
	Document     []byte `json:"-"`
	DocumentName string `json:"document_name,omitempty"`
}

// Credentials are opaque keys handed through to external collaborators.
// The pipeline never inspects them.
type Credentials struct {
	ReasoningAPIKey string `json:"-"`
	SearchAPIKey    string `json:"-"`
	SearchEngineID  string `json:"-"`
}

// Params returns the run parameters exposed to stage prompts and tool templates.
func (r RunInputs) Params() map[string]string {
	return map[string]string{
		"job_url":       r.JobURL,
		"company_name":  r.CompanyName,
		"document_name": r.DocumentName,
	}
}
