// Package catalog holds the normalized entity model handed to the downstream
// catalog and the sinks that deliver full-replace mutations to it.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	APIVersion   = "backstage.io/v1alpha1"
	ResourceKind = "Resource"

	// maxNameLength is the longest name the catalog accepts
	maxNameLength = 63
)

var validName = regexp.MustCompile(`^[a-z0-9]+(?:[-_.]+[a-z0-9]+)*$`)

// Entity is a normalized catalog entity. Entities are built once by a
// mapper and never mutated afterwards.
type Entity struct {
	APIVersion string   `json:"apiVersion" yaml:"apiVersion"`
	Kind       string   `json:"kind" yaml:"kind"`
	Metadata   Metadata `json:"metadata" yaml:"metadata"`
	Spec       Spec     `json:"spec" yaml:"spec"`
}

type Metadata struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Tags        []string          `json:"tags" yaml:"tags"`
	Annotations map[string]string `json:"annotations" yaml:"annotations"`
}

type Spec struct {
	Type   string `json:"type" yaml:"type"`
	Owner  string `json:"owner" yaml:"owner"`
	System string `json:"system,omitempty" yaml:"system,omitempty"`
	// Parameters holds the kind specific attributes. Absent optional values
	// are left out rather than set to null.
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
}

// Name is shorthand for e.Metadata.Name
func (e *Entity) Name() string {
	return e.Metadata.Name
}

// Validate checks the fields the catalog requires
func (e *Entity) Validate() error {
	var errs []error

	if e.APIVersion == "" {
		errs = append(errs, errors.New("apiVersion is empty"))
	}
	if e.Kind == "" {
		errs = append(errs, errors.New("kind is empty"))
	}
	if len(e.Metadata.Name) > maxNameLength {
		errs = append(errs, fmt.Errorf("name %q is longer than %d characters", e.Metadata.Name, maxNameLength))
	}
	if !validName.MatchString(e.Metadata.Name) {
		errs = append(errs, fmt.Errorf("name %q is not a valid catalog name", e.Metadata.Name))
	}
	if e.Spec.Type == "" {
		errs = append(errs, errors.New("spec.type is empty"))
	}
	if e.Spec.Owner == "" {
		errs = append(errs, errors.New("spec.owner is empty"))
	}

	return errors.Join(errs...)
}
