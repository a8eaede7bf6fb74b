package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	PresetDefault = "default"
	PresetStrict  = "strict"
)

// Policy is the raw order status policy as written in POLICY_FILE.
type Policy struct {
	Transitions     map[string][]string `yaml:"transitions"`
	Terminal        []string            `yaml:"terminal"`
	PaymentRequired []string            `yaml:"payment_required"`
}

func DefaultPolicy() Policy {
	return Policy{
		Transitions: map[string][]string{
			"Pending":   {"Prepared", "Completed"},
			"Prepared":  {"Completed"},
			"Completed": {"Paid"},
		},
		Terminal:        []string{"Prepared", "Completed", "Paid"},
		PaymentRequired: []string{"Paid"},
	}
}

// StrictPolicy additionally requires a payment method before Completed.
func StrictPolicy() Policy {
	p := DefaultPolicy()
	p.PaymentRequired = []string{"Completed", "Paid"}
	return p
}

func PresetPolicy(name string) (Policy, error) {
	switch name {
	case "", PresetDefault:
		return DefaultPolicy(), nil
	case PresetStrict:
		return StrictPolicy(), nil
	}
	return Policy{}, fmt.Errorf("unknown policy preset %q", name)
}

// LoadPolicy decodes a YAML policy file. Unknown keys are rejected.
func LoadPolicy(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var p Policy
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(p.Transitions) == 0 {
		return Policy{}, fmt.Errorf("policy file %s defines no transitions", path)
	}
	return p, nil
}
