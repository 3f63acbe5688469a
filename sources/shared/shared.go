// Package shared holds naming helpers used by every provider's mappers
package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Source is the provider a resource came from, e.g. "cloudflare"
type Source string

// Resource is the provider's kind of resource, e.g. "r2" or "ai-gateway"
type Resource string

// ItemType is the catalog type of an entity: <source>-<resource>
type ItemType struct {
	Source   Source
	Resource Resource
}

func NewItemType(source Source, resource Resource) ItemType {
	return ItemType{Source: source, Resource: resource}
}

func (i ItemType) String() string {
	return string(i.Source) + "-" + string(i.Resource)
}

// words that stay upper case in Readable
var acronyms = map[string]bool{
	"ai": true,
	"d1": true,
	"kv": true,
	"r2": true,
}

// Readable returns the type for humans, e.g. "Cloudflare AI Gateway"
func (i ItemType) Readable() string {
	// a Caser is stateful, so one per call
	title := cases.Title(language.English)
	words := strings.Split(i.String(), "-")
	for n, w := range words {
		if acronyms[w] {
			words[n] = strings.ToUpper(w)
		} else {
			words[n] = title.String(w)
		}
	}
	return strings.Join(words, " ")
}
