package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

type ruleSpec struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	Placeholder string `yaml:"placeholder"`
}

type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadRules reads extra replacement rules from a YAML file. Rules without an
// explicit placeholder use the default one.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}

	rules := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %s: %w", r.Name, err)
		}
		placeholder := r.Placeholder
		if placeholder == "" {
			placeholder = Placeholder
		}
		rules = append(rules, Rule{Name: r.Name, Regex: re, Placeholder: placeholder})
	}
	return rules, nil
}
