package policy

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk shape of a declarative policy set:
//
//	policies:
//	  - id: deny-secret
//	    name: Deny access to secret data
//	    priority: 1
//	    enabled: true
//	    conditions:
//	      - type: data_classification
//	        operator: equals
//	        value: SECRET
//	    actions:
//	      - type: deny
type policyFile struct {
	Policies []SecurityPolicy `yaml:"policies"`
}

// LoadPolicies reads a YAML policy set and validates every policy.
// Unknown condition types, operators, or action types are rejected.
func LoadPolicies(r io.Reader) ([]SecurityPolicy, error) {
	var file policyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("policy: decode policy set: %w", err)
	}

	seen := make(map[string]bool, len(file.Policies))
	for _, p := range file.Policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate policy id %q", ErrInvalidPolicy, p.ID)
		}
		seen[p.ID] = true
	}

	return file.Policies, nil
}

// LoadPoliciesInto reads a YAML policy set and upserts every policy into
// the engine.
func LoadPoliciesInto(r io.Reader, engine *Engine) error {
	policies, err := LoadPolicies(r)
	if err != nil {
		return err
	}
	return engine.AddPolicies(policies...)
}
