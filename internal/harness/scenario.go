package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a graph, the rules to run
// over it and what the result must look like.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifests lists CUE rule manifests to compile and register after the
	// built-in rules. Paths are relative to the scenario file.
	Manifests []string `yaml:"manifests,omitempty"`

	// NoBuiltins leaves the built-in rules out of the registry.
	NoBuiltins bool `yaml:"no_builtins,omitempty"`

	// Graph is the input graph text.
	Graph string `yaml:"graph"`

	// MaxRewrites overrides the engine's rewrite cap when positive.
	MaxRewrites int `yaml:"max_rewrites,omitempty"`

	// ExpectError names the error the run must end with: "cycle" or
	// "quota". Empty means the run must converge.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the output graph and the applied rewrites.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the output graph or the rewrite sequence.
type Assertion struct {
	// Type is one of op_count, op_params, absent, rewrite_order.
	Type string `yaml:"type"`

	// OpType is the operator type (op_count, absent, optionally op_params).
	OpType string `yaml:"op_type,omitempty"`

	// Operator is the operator name (op_params).
	Operator string `yaml:"operator,omitempty"`

	// Count is the expected number of operators (op_count).
	Count int `yaml:"count,omitempty"`

	// Params maps parameter keys to their expected text form (op_params).
	// Subset match - only listed keys are checked.
	Params map[string]string `yaml:"params,omitempty"`

	// Rules is the expected rule order (rewrite_order). Other rules may be
	// applied in between.
	Rules []string `yaml:"rules,omitempty"`
}

// Assertion type constants.
const (
	AssertOpCount      = "op_count"
	AssertOpParams     = "op_params"
	AssertAbsent       = "absent"
	AssertRewriteOrder = "rewrite_order"
)

// Expected run errors.
const (
	ExpectCycle = "cycle"
	ExpectQuota = "quota"
)

// LoadScenario reads and parses a scenario YAML file and resolves its
// manifest paths against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, m := range scenario.Manifests {
		if !filepath.IsAbs(m) {
			scenario.Manifests[i] = filepath.Join(base, m)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, in lexical order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}

	var paths []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", p, s.Name, prev)
		}
		names[s.Name] = p
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if strings.TrimSpace(s.Graph) == "" {
		return fmt.Errorf("graph is required")
	}

	if s.MaxRewrites < 0 {
		return fmt.Errorf("max_rewrites must be non-negative")
	}

	switch s.ExpectError {
	case "", ExpectCycle, ExpectQuota:
	default:
		return fmt.Errorf("unknown expect_error %q (want %s or %s)", s.ExpectError, ExpectCycle, ExpectQuota)
	}

	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	for _, m := range s.Manifests {
		if _, err := os.Stat(m); os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", m)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOpCount:
		if a.OpType == "" {
			return fmt.Errorf("assertions[%d]: op_type is required for op_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for op_count", index)
		}
	case AssertOpParams:
		if a.Operator == "" {
			return fmt.Errorf("assertions[%d]: operator is required for op_params", index)
		}
		if len(a.Params) == 0 && a.OpType == "" {
			return fmt.Errorf("assertions[%d]: params or op_type is required for op_params", index)
		}
	case AssertAbsent:
		if a.OpType == "" {
			return fmt.Errorf("assertions[%d]: op_type is required for absent", index)
		}
	case AssertRewriteOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for rewrite_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
