// Package normalize canonicalizes raw extracted entities before they touch
// the graph store. All functions are pure and idempotent.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

// ErrInvalidEntityType marks an extracted entity whose type is outside the
// node vocabulary. The entity is rejected; the rest of the paper proceeds.
var ErrInvalidEntityType = errors.New("invalid entity type")

// Entity is a canonicalized extracted entity ready for upsert.
type Entity struct {
	Type       model.NodeType
	Label      string
	Properties model.Properties
}

// Key returns the deduplication key (node_type, case-folded label).
func (e Entity) Key() DedupKey {
	return DedupKey{Type: e.Type, Label: strings.ToLower(e.Label)}
}

type DedupKey struct {
	Type  model.NodeType
	Label string
}

// Label trims, collapses internal whitespace and title-cases a raw label
// while preserving all-caps acronyms. Applying it twice is a no-op.
func Label(raw string) string {
	fields := strings.Fields(raw)
	for i, w := range fields {
		if isAcronym(w) {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}

func isAcronym(w string) bool {
	if len(w) < 2 {
		return false
	}
	hasLetter := false
	for _, r := range w {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// Entity validates the raw entity type against the node vocabulary and
// canonicalizes its label. Author labels keep their original casing apart
// from whitespace folding, since personal names are not title-cased reliably.
func EntityFrom(raw model.ExtractedEntity) (Entity, error) {
	t := model.NodeType(strings.ToLower(strings.TrimSpace(raw.Type)))
	if !t.Valid() {
		// Tolerate plural forms produced by extraction drift.
		t = model.NodeType(strings.TrimSuffix(string(t), "s"))
	}
	if !t.Valid() || t == model.NodePaper {
		return Entity{}, fmt.Errorf("%w: %q", ErrInvalidEntityType, raw.Type)
	}

	label := Label(raw.Label)
	if t == model.NodeAuthor {
		label = strings.Join(strings.Fields(raw.Label), " ")
	}
	if label == "" {
		return Entity{}, fmt.Errorf("%w: empty label for type %q", ErrInvalidEntityType, raw.Type)
	}

	props := model.Properties{}
	for k, v := range raw.Properties {
		props[k] = v
	}
	if raw.Description != "" {
		if _, ok := props[model.PropDescription]; !ok {
			props[model.PropDescription] = raw.Description
		}
	}

	return Entity{Type: t, Label: label, Properties: props}, nil
}

// Entities normalizes a batch, folding duplicates that collapse onto the
// same dedup key. Properties of later duplicates merge into the survivor
// without overwriting. Entities with invalid types are returned separately.
func Entities(raw []model.ExtractedEntity) (kept []Entity, rejected []model.ExtractedEntity) {
	seen := map[DedupKey]int{}
	for _, r := range raw {
		e, err := EntityFrom(r)
		if err != nil {
			rejected = append(rejected, r)
			continue
		}
		if i, ok := seen[e.Key()]; ok {
			for k, v := range e.Properties {
				if _, exists := kept[i].Properties[k]; !exists {
					kept[i].Properties[k] = v
				}
			}
			continue
		}
		seen[e.Key()] = len(kept)
		kept = append(kept, e)
	}
	return kept, rejected
}
