package extension

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/juiceinc/recipe/recipe"
)

// anonymizerMetaKey is the ingredient Meta key that toggles masking for
// that ingredient, mirroring original_source/recipe/extensions.py's
// ingredient.meta.anonymizer hook.
const anonymizerMetaKey = "anonymizer"

// Anonymize appends a masking Formatter to every ingredient whose Meta
// carries an anonymizer, once the extension itself is turned on (spec
// §4.9). The original ports a FakerAnonymizer that renders
// fake-but-plausible replacement values per datatype; no
// faker-equivalent library exists in this module's dependency set, so
// Anonymize masks deterministically by hashing the raw value instead —
// same input always anonymizes to the same output, which is what
// repeatable test fixtures and caching both need.
type Anonymize struct {
	base

	enabled bool
}

// NewAnonymize builds an Anonymize extension, disabled by default —
// callers opt in with Enable(true), matching the original's
// anonymize=False default.
func NewAnonymize() *Anonymize {
	return &Anonymize{}
}

// Enable turns anonymization on or off.
func (a *Anonymize) Enable(v bool) *Anonymize {
	a.enabled = v
	a.markDirty()
	return a
}

// ModifyRecipeParts appends a masking formatter to every ingredient
// tagged for anonymization, once per recipe assembly.
func (a *Anonymize) ModifyRecipeParts(r *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	if !a.enabled {
		return parts, nil
	}
	for _, ing := range r.CauldronIngredients() {
		if _, ok := ing.Meta[anonymizerMetaKey]; ok {
			ing.Formatters = append(ing.Formatters, maskValue)
		}
	}
	return parts, nil
}

// maskValue replaces a scalar with a short hash of its string form, so
// the same raw value always anonymizes the same way within and across
// queries.
func maskValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	sum := sha1.Sum([]byte(fmt.Sprint(v)))
	return hex.EncodeToString(sum[:])[:12]
}
