// Package mappers converts Cloudflare resources into catalog entities. Every
// mapper is a pure function; the table in this package picks one by kind.
package mappers

import (
	"fmt"

	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/shared"
)

const (
	AccountAnnotation = "cloudflare.com/account-id"
	DefaultOwner      = "unknown"
)

// Config carries the account and default grouping labels every entity gets
type Config struct {
	AccountID     string
	DefaultOwner  string
	DefaultSystem string
}

// MapFunc maps one resource and its optional enrichment. It returns nil, nil
// when the resource has no stable identifier.
type MapFunc func(cfg Config, r cloudflare.Resource, e cloudflare.Enrichment) (*catalog.Entity, error)

// TypeMismatchError is returned when a resource or enrichment is not the type
// the kind's mapper expects
type TypeMismatchError struct {
	Kind cloudflare.Kind
	Want string
	Got  any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("mapper for %v expected %v, got %T", e.Kind, e.Want, e.Got)
}

// Map dispatches r to the mapper registered for its kind
func Map(cfg Config, r cloudflare.Resource, e cloudflare.Enrichment) (*catalog.Entity, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot map a nil resource")
	}

	fn, ok := table[r.Kind()]
	if !ok {
		return nil, fmt.Errorf("no mapper for kind %v", r.Kind())
	}

	return fn(cfg, r, e)
}

// Has reports whether kind has a mapper
func Has(kind cloudflare.Kind) bool {
	_, ok := table[kind]
	return ok
}

// Type returns the catalog type string entities of kind are given
func Type(kind cloudflare.Kind) (shared.ItemType, bool) {
	d, ok := descriptors[kind]
	return d.itemType, ok
}

// descriptor holds the parts of an entity that only depend on the kind
type descriptor struct {
	itemType shared.ItemType
	prefix   string
	label    string
	tags     []string
}

func (d descriptor) entity(cfg Config, identifier, displayName string) *catalog.Entity {
	owner := cfg.DefaultOwner
	if owner == "" {
		owner = DefaultOwner
	}

	tags := make([]string, len(d.tags))
	copy(tags, d.tags)

	return &catalog.Entity{
		APIVersion: catalog.APIVersion,
		Kind:       catalog.ResourceKind,
		Metadata: catalog.Metadata{
			Name:        shared.EntityName(d.prefix, identifier),
			Description: fmt.Sprintf("%v: %v", d.label, displayName),
			Tags:        tags,
			Annotations: map[string]string{
				AccountAnnotation: cfg.AccountID,
			},
		},
		Spec: catalog.Spec{
			Type:   d.itemType.String(),
			Owner:  owner,
			System: cfg.DefaultSystem,
		},
	}
}

// plain wraps a mapper for a kind that has no enrichment
func plain[R cloudflare.Resource](kind cloudflare.Kind, fn func(cfg Config, r R) *catalog.Entity) MapFunc {
	return func(cfg Config, r cloudflare.Resource, e cloudflare.Enrichment) (*catalog.Entity, error) {
		res, ok := r.(R)
		if !ok {
			var want R
			return nil, &TypeMismatchError{Kind: kind, Want: fmt.Sprintf("%T", want), Got: r}
		}
		if e != nil {
			return nil, &TypeMismatchError{Kind: kind, Want: "no enrichment", Got: e}
		}
		if res.Identifier() == "" {
			return nil, nil
		}
		return fn(cfg, res), nil
	}
}

// enriched wraps a mapper whose kind has an enrichment of type E. A nil
// enrichment reaches fn as a nil E.
func enriched[R cloudflare.Resource, E cloudflare.Enrichment](kind cloudflare.Kind, fn func(cfg Config, r R, e E) *catalog.Entity) MapFunc {
	return func(cfg Config, r cloudflare.Resource, e cloudflare.Enrichment) (*catalog.Entity, error) {
		res, ok := r.(R)
		if !ok {
			var want R
			return nil, &TypeMismatchError{Kind: kind, Want: fmt.Sprintf("%T", want), Got: r}
		}

		var enrichment E
		if e != nil {
			enrichment, ok = e.(E)
			if !ok {
				return nil, &TypeMismatchError{Kind: kind, Want: fmt.Sprintf("%T", enrichment), Got: e}
			}
		}

		if res.Identifier() == "" {
			return nil, nil
		}
		return fn(cfg, res, enrichment), nil
	}
}
