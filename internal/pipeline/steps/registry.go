// Package steps provides the stage table, its validation, and dependency
// resolution against the artifact store.
package steps

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/resume-optimizer/internal/agent"
	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/contract"
	"github.com/jonathan/resume-optimizer/internal/llm"
	"github.com/jonathan/resume-optimizer/internal/tools"
)

//go:embed stages.yaml
var stagesYAML []byte

// Stage categories.
const (
	CategoryAnalysis   = "analysis"
	CategoryResearch   = "research"
	CategoryGeneration = "generation"
)

// Definition is one row of the stage table.
type Definition struct {
	Name        string             `yaml:"name"`
	Category    string             `yaml:"category"`
	Artifact    string             `yaml:"artifact"`
	Output      artifacts.Kind     `yaml:"output"`
	Tier        llm.ModelTier      `yaml:"tier"`
	Inputs      []string           `yaml:"inputs"`
	Tools       []tools.Name       `yaml:"tools"`
	Invocations []tools.Invocation `yaml:"invocations"`
	Knowledge   *agent.Knowledge   `yaml:"knowledge"`
}

// Stage converts the definition into the descriptor the agent runner executes.
func (d Definition) Stage() agent.Stage {
	return agent.Stage{
		Name:        d.Name,
		Artifact:    d.Artifact,
		Output:      d.Output,
		Tools:       slices.Clone(d.Tools),
		Invocations: slices.Clone(d.Invocations),
		Knowledge:   d.Knowledge,
		Tier:        d.Tier,
	}
}

// Contract returns the output contract of the stage.
func (d Definition) Contract() (contract.Contract, error) {
	c, err := contract.ForArtifact(d.Artifact)
	if err != nil {
		return contract.Contract{}, err
	}
	return c.WithStage(d.Name), nil
}

type table struct {
	Stages []Definition `yaml:"stages"`
}

// Parse decodes and validates a stage table.
func Parse(data []byte) ([]Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse stage table: %w", err)
	}
	if err := Validate(t.Stages); err != nil {
		return nil, err
	}
	return t.Stages, nil
}

var loadDefault = sync.OnceValues(func() ([]Definition, error) {
	return Parse(stagesYAML)
})

// Default returns the built-in stage table. The result is shared; callers
// must not modify it.
func Default() []Definition {
	defs, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("built-in stage table is invalid: %v", err))
	}
	return defs
}

// Names returns the stage names in order.
func Names(defs []Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// KnowledgeStages returns the stages allowed to read the uploaded document.
func KnowledgeStages(defs []Definition) []string {
	var names []string
	for _, d := range defs {
		if d.Knowledge != nil {
			names = append(names, d.Name)
		}
	}
	return names
}

// TableError lists every problem found in a stage table.
type TableError struct {
	Problems []string
}

func (e *TableError) Error() string {
	return "invalid stage table: " + strings.Join(e.Problems, "; ")
}

// Validate checks a stage table: unique names and artifacts, registered
// contracts, known tools, and inputs produced by an earlier stage.
func Validate(defs []Definition) error {
	var problems []string
	if len(defs) == 0 {
		problems = append(problems, "no stages")
	}

	seenStage := make(map[string]bool)
	produced := make(map[string]bool)
	for i, d := range defs {
		where := fmt.Sprintf("stage %d (%s)", i+1, d.Name)
		if d.Name == "" {
			problems = append(problems, where+": missing name")
		} else if seenStage[d.Name] {
			problems = append(problems, where+": duplicate name")
		}
		seenStage[d.Name] = true

		if c, err := contract.ForArtifact(d.Artifact); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", where, err))
		} else if c.Kind != d.Output {
			problems = append(problems, fmt.Sprintf("%s: output %q does not match %s contract (%s)", where, d.Output, d.Artifact, c.Kind))
		}
		if produced[d.Artifact] {
			problems = append(problems, fmt.Sprintf("%s: artifact %s produced twice", where, d.Artifact))
		}

		for _, in := range d.Inputs {
			if !produced[in] {
				problems = append(problems, fmt.Sprintf("%s: input %s is not produced by an earlier stage", where, in))
			}
		}

		if len(d.Tools) == 0 {
			problems = append(problems, where+": no tools declared (use none)")
		}
		for _, tool := range d.Tools {
			if !tool.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown tool %q", where, tool))
			}
			if tool == tools.None && len(d.Tools) > 1 {
				problems = append(problems, where+": none cannot be combined with other tools")
			}
		}
		for _, inv := range d.Invocations {
			if inv.Tool == tools.None || !slices.Contains(d.Tools, inv.Tool) {
				problems = append(problems, fmt.Sprintf("%s: invocation of undeclared tool %q", where, inv.Tool))
			}
		}

		produced[d.Artifact] = true
	}

	if len(problems) > 0 {
		return &TableError{Problems: problems}
	}
	return nil
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: missing dependencies: %v", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks that every input artifact of a stage exists in
// the store.
func ValidateDependencies(ctx context.Context, store artifacts.Store, def Definition) error {
	var missing []string
	for _, dep := range def.Inputs {
		ok, err := store.Exists(ctx, dep)
		if err != nil {
			return fmt.Errorf("failed to check dependency %s: %w", dep, err)
		}
		if !ok {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{Step: def.Name, MissingDependencies: missing}
	}
	return nil
}

// ResolveInputs validates dependencies and loads the input artifacts of a
// stage in declaration order.
func ResolveInputs(ctx context.Context, store artifacts.Store, def Definition) ([]artifacts.Artifact, error) {
	if err := ValidateDependencies(ctx, store, def); err != nil {
		return nil, err
	}
	inputs := make([]artifacts.Artifact, 0, len(def.Inputs))
	for _, name := range def.Inputs {
		a, err := store.Get(ctx, name)
		if errors.Is(err, artifacts.ErrNotFound) {
			return nil, &DependencyError{Step: def.Name, MissingDependencies: []string{name}}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		inputs = append(inputs, *a)
	}
	return inputs, nil
}
