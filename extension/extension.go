// Package extension implements the Recipe plug-ins spec §4.9 describes:
// automatic filters, pagination, and anonymization, each hooking into
// the recipe.Extension interface's AddIngredients/Modify*Parts/Dirty
// contract (component C9).
package extension

import "github.com/juiceinc/recipe/recipe"

// base gives every extension in this package the shared no-op
// implementation of recipe.Extension, so each one only needs to
// override the hooks it actually uses — the same "most hooks are
// no-ops" shape original_source/recipe/extensions.py's RecipeExtension
// base class provides.
type base struct {
	dirty bool
}

func (b *base) AddIngredients(*recipe.Recipe) error { return nil }

func (b *base) ModifyRecipeParts(_ *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	return parts, nil
}

func (b *base) ModifyPrequeryParts(_ *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	return parts, nil
}

func (b *base) ModifyPostqueryParts(_ *recipe.Recipe, parts *recipe.QueryParts) (*recipe.QueryParts, error) {
	return parts, nil
}

func (b *base) Dirty() bool { return b.dirty }

func (b *base) ClearDirty() { b.dirty = false }

func (b *base) markDirty() { b.dirty = true }
