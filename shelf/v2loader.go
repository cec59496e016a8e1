package shelf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure"

	"github.com/juiceinc/recipe/catalog"
	"github.com/juiceinc/recipe/expression"
	"github.com/juiceinc/recipe/grammar"
	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/parser"
	"github.com/juiceinc/recipe/rerrors"
	"github.com/juiceinc/recipe/sql"
	"github.com/juiceinc/recipe/transform"
	"github.com/juiceinc/recipe/validator"
)

// EntryConfig is one ingredient's configuration value-tree, the v2
// ("parsed") shape of spec §4.7: a raw expression string per role plus
// bucket/quickselect/lookup auxiliary fields. Field values are read as
// plain Go values (string/float64/bool/[]interface{}/map[string]interface{})
// the way a decoded YAML/JSON document would hand them back.
type EntryConfig struct {
	Kind string // "Dimension", "Metric", "Filter", "Having"

	// Field is the primary expression: "field" for Dimension/Metric,
	// "condition" for Filter/Having.
	Field string

	// RoleFields holds "{role}_field" entries (id_field, order_by_field,
	// latitude_field, ...) for extra Dimension roles.
	RoleFields map[string]string

	Lookup        map[string]interface{}
	LookupDefault interface{}
	HasLookupDefault bool

	Buckets             []BucketConfig
	BucketsDefaultLabel string

	QuickSelects map[string]string // name -> condition expression text

	ColumnSuffixes []string
	Formatters     []ingredient.Formatter

	Ordering        string
	GroupByStrategy string

	Meta map[string]interface{}
}

// BucketConfig is one {condition, label} pair of a bucketed dimension.
type BucketConfig struct {
	Condition string
	Label     string
}

// Driver selects which kind value-builder constructor a Kind string maps to.
func kindFromString(s string) (ingredient.Kind, error) {
	switch s {
	case "Dimension":
		return ingredient.KindDimension, nil
	case "Metric":
		return ingredient.KindMetric, nil
	case "Filter":
		return ingredient.KindFilter, nil
	case "Having":
		return ingredient.KindHaving, nil
	default:
		return 0, rerrors.BadIngredient.New(fmt.Sprintf("unknown ingredient kind %q", s))
	}
}

// LoadV2 builds a Shelf from an ordered list of (id, config) v2 entries
// against cc (spec §4.7's "parsed" loader). Order is preserved as shelf
// insertion order. A single entry's compile failure becomes an
// InvalidIngredient rather than aborting the whole load, per spec §7's
// propagation policy; the returned Shelf is always usable.
//
// The returned string is a shelf-level cache key built from the catalog's
// grammar hash and a structural hash of cfgs, which a caller may use to
// skip reparsing an unchanged configuration (spec §4.7's
// "{ingredient-id: (tree, validator-state)}" cache). LoadV2 itself never
// reads or writes that key in cache.
func LoadV2(table string, cc *catalog.ColCollection, ids []string, cfgs map[string]EntryConfig, drivername string, cache sql.Cache) (*Shelf, string, error) {
	s := New(table)
	s.Cache = cache
	grammarHash := grammar.Hash(grammar.Build(cc))

	cfgHash, err := hashstructure.Hash(cfgs, nil)
	if err != nil {
		return nil, "", fmt.Errorf("shelf: hashing configuration: %w", err)
	}
	shelfCacheKey := fmt.Sprintf("shelf:%s:%x", grammarHash, cfgHash)

	for _, id := range ids {
		cfg, ok := cfgs[id]
		if !ok {
			continue
		}
		ing, err := buildV2Ingredient(id, cfg, cc, grammarHash, drivername, cache)
		if err != nil {
			ing = ingredient.NewInvalidIngredient(err, ingredient.WithID(id))
		}
		s.Use(id, ing)
	}
	return s, shelfCacheKey, nil
}

func buildV2Ingredient(id string, cfg EntryConfig, cc *catalog.ColCollection, grammarHash, drivername string, cache sql.Cache) (*ingredient.Ingredient, error) {
	kind, err := kindFromString(cfg.Kind)
	if err != nil {
		return nil, err
	}

	enforceAggregation := kind == ingredient.KindMetric || kind == ingredient.KindHaving
	forbidAggregation := kind == ingredient.KindDimension || kind == ingredient.KindFilter

	field := cfg.Field
	if len(cfg.Buckets) > 0 {
		field = bucketExpression(cfg.Buckets, cfg.BucketsDefaultLabel)
	}

	valueExpr, err := compileField(field, cc, grammarHash, drivername, forbidAggregation, enforceAggregation, cache)
	if err != nil {
		return nil, err
	}

	opts := []ingredient.Option{ingredient.WithID(id)}
	if len(cfg.ColumnSuffixes) > 0 {
		opts = append(opts, ingredient.WithColumnSuffixes(cfg.ColumnSuffixes...))
	}
	if cfg.Ordering != "" {
		opts = append(opts, ingredient.WithOrdering(cfg.Ordering))
	}
	if cfg.GroupByStrategy != "" {
		opts = append(opts, ingredient.WithGroupByStrategy(cfg.GroupByStrategy))
	}
	for k, v := range cfg.Meta {
		opts = append(opts, ingredient.WithMeta(k, v))
	}
	opts = append(opts, ingredient.WithFormatters(cfg.Formatters...))

	qs, err := compileQuickSelects(cfg.QuickSelects, cc, grammarHash, drivername, cache)
	if err != nil {
		return nil, err
	}
	if len(qs) > 0 {
		opts = append(opts, ingredient.WithQuickSelects(qs...))
	}

	switch kind {
	case ingredient.KindFilter:
		return ingredient.NewFilter(valueExpr, opts...), nil
	case ingredient.KindHaving:
		return ingredient.NewHaving(valueExpr, opts...), nil
	case ingredient.KindMetric:
		return ingredient.NewMetric(valueExpr, opts...), nil
	case ingredient.KindDimension:
		dimOpts, err := compileDimRoles(cfg, cc, grammarHash, drivername, cache)
		if err != nil {
			return nil, err
		}
		if len(cfg.Buckets) > 0 {
			orderExpr, err := compileField(bucketOrderExpression(cfg.Buckets), cc, grammarHash, drivername, true, false, cache)
			if err != nil {
				return nil, err
			}
			dimOpts = append(dimOpts, ingredient.WithRole("order_by", orderExpr))
		}
		if cfg.Lookup != nil {
			dimOpts = append(dimOpts, ingredient.WithLookup(cfg.Lookup))
			if cfg.HasLookupDefault {
				dimOpts = append(dimOpts, ingredient.WithLookupDefault(cfg.LookupDefault))
			}
		}
		return ingredient.NewDimension(valueExpr, opts, dimOpts...)
	default:
		return nil, rerrors.BadIngredient.New("unreachable ingredient kind")
	}
}

func compileDimRoles(cfg EntryConfig, cc *catalog.ColCollection, grammarHash, drivername string, cache sql.Cache) ([]ingredient.DimOption, error) {
	roles := make([]string, 0, len(cfg.RoleFields))
	for role := range cfg.RoleFields {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var out []ingredient.DimOption
	for _, role := range roles {
		expr, err := compileField(cfg.RoleFields[role], cc, grammarHash, drivername, true, false, cache)
		if err != nil {
			return nil, err
		}
		out = append(out, ingredient.WithRole(role, expr))
	}
	return out, nil
}

func compileQuickSelects(raw map[string]string, cc *catalog.ColCollection, grammarHash, drivername string, cache sql.Cache) ([]ingredient.QuickSelect, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ingredient.QuickSelect, 0, len(names))
	for _, name := range names {
		expr, err := compileField(raw[name], cc, grammarHash, drivername, true, false, cache)
		if err != nil {
			return nil, err
		}
		out = append(out, ingredient.QuickSelect{Name: name, Condition: expr})
	}
	return out, nil
}

// compileField runs fieldText through the cached parse (package parser),
// the validator (package validator), and the lowering transform (package
// transform) — the C3/C4/C5 pipeline spec §4.7 describes a v2 entry as
// invoking directly.
func compileField(fieldText string, cc *catalog.ColCollection, grammarHash, drivername string, forbidAggregation, enforceAggregation bool, cache sql.Cache) (expression.Expression, error) {
	flags := parser.Flags{ForbidAggregation: forbidAggregation}
	tree, _, err := parser.ParseCached(cache, grammarHash, fieldText, flags, cc)
	if err != nil {
		return nil, rerrors.NewGrammarError(fieldText, []rerrors.Diagnostic{{Message: err.Error()}})
	}

	result := validator.Validate(tree, fieldText, validator.Options{
		ForbidAggregation: forbidAggregation,
		Drivername:        drivername,
	})
	if len(result.Diagnostics) > 0 {
		return nil, rerrors.NewGrammarError(fieldText, result.Diagnostics)
	}

	if enforceAggregation && !result.FoundAggregation && result.LastDatatype == sql.Num {
		tree = parser.WrapAggregate(tree, "sum")
	}

	lowered, err := transform.Lower(tree, fieldText, transform.Options{Drivername: drivername})
	if err != nil {
		return nil, err
	}
	// A field must produce an expression, not a bare literal (spec §4.5
	// "Enforcement flags").
	if lit, ok := lowered.(*expression.Literal); ok {
		switch lit.DT {
		case sql.Str, sql.Num, sql.Date, sql.Datetime:
			return nil, rerrors.NewGrammarError(fieldText, []rerrors.Diagnostic{
				{Message: "a field can not be a bare literal value"},
			})
		}
	}
	return lowered, nil
}

// bucketExpression renders buckets as the IF(...) chain text spec §4.7
// describes, so it goes through the same compileField pipeline as any
// other field instead of constructing expression nodes by hand.
func bucketExpression(buckets []BucketConfig, defaultLabel string) string {
	if defaultLabel == "" {
		defaultLabel = "Not found"
	}
	text := ""
	for _, b := range buckets {
		text += fmt.Sprintf("if(%s, \"%s\", ", b.Condition, escapeQuote(b.Label))
	}
	text += "\"" + escapeQuote(defaultLabel) + "\""
	for range buckets {
		text += ")"
	}
	return text
}

// bucketOrderExpression mirrors bucketExpression but emits the positional
// integer each bucket occupies (and 9999 for the default), so ORDER BY
// follows bucket order regardless of label collation (spec §4.7).
func bucketOrderExpression(buckets []BucketConfig) string {
	text := ""
	for i, b := range buckets {
		text += fmt.Sprintf("if(%s, %d, ", b.Condition, i)
	}
	text += "9999"
	for range buckets {
		text += ")"
	}
	return text
}

// escapeQuote strips embedded double quotes from a bucket label so the
// generated field text stays a single well-formed string literal; the
// lexer has no escape syntax of its own to lean on.
func escapeQuote(s string) string {
	return strings.ReplaceAll(s, "\"", "")
}
