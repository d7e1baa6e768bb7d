package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/steelcutops/pacstate/pacstate/reconcile"
)

// StringList accepts either a YAML sequence or a comma separated string.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = SplitNames(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list", value.Line)
	}
}

// SplitNames splits a comma separated package list, dropping blanks.
func SplitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// Task is the file form of a reconciliation request.
type Task struct {
	Name             StringList `yaml:"name"`
	Pkg              StringList `yaml:"pkg"`
	Package          StringList `yaml:"package"`
	State            string     `yaml:"state"`
	Recurse          bool       `yaml:"recurse"`
	Force            bool       `yaml:"force"`
	UpdateCache      bool       `yaml:"update_cache"`
	UpdateCacheAlias bool       `yaml:"update-cache"`
	Upgrade          bool       `yaml:"upgrade"`
}

// Request converts the task into a validated request.
func (t Task) Request() (reconcile.Request, error) {
	state, err := reconcile.ParseState(t.State)
	if err != nil {
		return reconcile.Request{}, err
	}

	req := reconcile.Request{
		Names:       t.names(),
		State:       state,
		Recurse:     t.Recurse,
		Force:       t.Force,
		UpdateCache: t.UpdateCache || t.UpdateCacheAlias,
		Upgrade:     t.Upgrade,
	}
	if err := req.Validate(); err != nil {
		return reconcile.Request{}, err
	}
	return req, nil
}

// names joins name and its aliases pkg and package, in that order.
func (t Task) names() []string {
	var names []string
	names = append(names, t.Name...)
	names = append(names, t.Pkg...)
	return append(names, t.Package...)
}

// LoadTask reads a YAML task file. Unknown keys are rejected.
func LoadTask(path string) (reconcile.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return reconcile.Request{}, fmt.Errorf("reading task %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var task Task
	if err := dec.Decode(&task); err != nil {
		return reconcile.Request{}, fmt.Errorf("%w: task %s: %v", reconcile.ErrUsage, path, err)
	}
	return task.Request()
}
