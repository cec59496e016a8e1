// Package configyaml decodes a YAML "ingredients file" into the
// ordered id list and shelf.EntryConfig map shelf.LoadV2 consumes,
// the Go counterpart of original_source/recipe/shelf.py's
// Shelf.from_yaml/from_validated_yaml (spec §4.7's config loader,
// component C7's YAML front door).
//
// YAML decodes nested mappings as map[interface{}]interface{}, and
// scalar leaves come back as whatever concrete type the YAML parser
// guessed (string, int, float64, bool) rather than the exact shape
// EntryConfig's fields want. spf13/cast normalizes both: its
// ToStringMapE walks a map[interface{}]interface{} into
// map[string]interface{}, and its ToStringE/ToFloat64E/ToSliceE/
// ToStringSliceE coerce a decoded scalar or sequence into the type a
// given EntryConfig field actually needs.
package configyaml

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"

	"github.com/juiceinc/recipe/ingredient"
	"github.com/juiceinc/recipe/shelf"
)

// Parse decodes an ingredients YAML document into shelf.LoadV2's two
// inputs: the ingredient ids in document order (sequence matters for
// dimension_ids/metric_ids ordering, spec §4.7) and their parsed
// configuration.
func Parse(data []byte) ([]string, map[string]shelf.EntryConfig, error) {
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("configyaml: parsing document: %w", err)
	}

	ids := make([]string, 0, len(doc))
	cfgs := make(map[string]shelf.EntryConfig, len(doc))
	for _, item := range doc {
		id, ok := item.Key.(string)
		if !ok {
			return nil, nil, fmt.Errorf("configyaml: ingredient id %v is not a string", item.Key)
		}
		entry, err := cast.ToStringMapE(item.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("configyaml: ingredient %q: %w", id, err)
		}
		cfg, err := parseEntry(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("configyaml: ingredient %q: %w", id, err)
		}
		ids = append(ids, id)
		cfgs[id] = cfg
	}
	return ids, cfgs, nil
}

func parseEntry(entry map[string]interface{}) (shelf.EntryConfig, error) {
	cfg := shelf.EntryConfig{}
	var err error

	if v, ok := entry["kind"]; ok {
		kind, isStr := v.(string)
		if !isStr {
			return cfg, fmt.Errorf("kind: %v is not a string", v)
		}
		cfg.Kind = kind
	}

	if v, ok := entry["field"]; ok {
		field, err := cast.ToStringE(v)
		if err != nil {
			return cfg, fmt.Errorf("field: %w", err)
		}
		cfg.Field = field
	}

	if v, ok := entry["condition"]; ok {
		condition, err := cast.ToStringE(v)
		if err != nil {
			return cfg, fmt.Errorf("condition: %w", err)
		}
		cfg.Field = condition
	}

	if v, ok := entry["ordering"]; ok {
		cfg.Ordering, err = cast.ToStringE(v)
		if err != nil {
			return cfg, fmt.Errorf("ordering: %w", err)
		}
	}

	if v, ok := entry["group_by_strategy"]; ok {
		cfg.GroupByStrategy, err = cast.ToStringE(v)
		if err != nil {
			return cfg, fmt.Errorf("group_by_strategy: %w", err)
		}
	}

	if v, ok := entry["buckets_default_label"]; ok {
		cfg.BucketsDefaultLabel, err = cast.ToStringE(v)
		if err != nil {
			return cfg, fmt.Errorf("buckets_default_label: %w", err)
		}
	}

	if v, ok := entry["column_suffixes"]; ok {
		suffixes, err := cast.ToStringSliceE(v)
		if err != nil {
			return cfg, fmt.Errorf("column_suffixes: %w", err)
		}
		cfg.ColumnSuffixes = suffixes
	}

	if v, ok := entry["lookup"]; ok {
		lookup, err := cast.ToStringMapE(v)
		if err != nil {
			return cfg, fmt.Errorf("lookup: %w", err)
		}
		cfg.Lookup = lookup
	}

	if v, ok := entry["lookup_default"]; ok {
		cfg.LookupDefault = v
		cfg.HasLookupDefault = true
	}

	if v, ok := entry["meta"]; ok {
		meta, err := cast.ToStringMapE(v)
		if err != nil {
			return cfg, fmt.Errorf("meta: %w", err)
		}
		cfg.Meta = meta
	}

	roleFields, err := parseRoleFields(entry)
	if err != nil {
		return cfg, err
	}
	cfg.RoleFields = roleFields

	if v, ok := entry["quickselect"]; ok {
		qs, err := parseQuickSelects(v)
		if err != nil {
			return cfg, fmt.Errorf("quickselect: %w", err)
		}
		cfg.QuickSelects = qs
	}

	if v, ok := entry["buckets"]; ok {
		buckets, err := parseBuckets(v)
		if err != nil {
			return cfg, fmt.Errorf("buckets: %w", err)
		}
		cfg.Buckets = buckets
	}

	if v, ok := entry["format"]; ok {
		name, err := cast.ToStringE(v)
		if err != nil {
			return cfg, fmt.Errorf("format: %w", err)
		}
		f, ok := namedFormatters[name]
		if !ok {
			return cfg, fmt.Errorf("format: unknown format %q", name)
		}
		cfg.Formatters = append(cfg.Formatters, f)
	}

	return cfg, nil
}

// reservedKeys are the entry keys parseEntry handles explicitly; every
// other key is taken to be a "{role}_field" entry (id_field,
// order_by_field, latitude_field, ...), spec §4.7's extra Dimension
// roles.
var reservedKeys = map[string]bool{
	"kind": true, "field": true, "condition": true, "ordering": true, "group_by_strategy": true,
	"buckets_default_label": true, "column_suffixes": true, "lookup": true,
	"lookup_default": true, "meta": true, "quickselect": true, "buckets": true,
	"format": true,
}

func parseRoleFields(entry map[string]interface{}) (map[string]string, error) {
	var out map[string]string
	for k, v := range entry {
		if reservedKeys[k] {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = s
	}
	return out, nil
}

func parseQuickSelects(raw interface{}) (map[string]string, error) {
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func parseBuckets(raw interface{}) ([]shelf.BucketConfig, error) {
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, err
	}
	out := make([]shelf.BucketConfig, 0, len(items))
	for _, item := range items {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, err
		}
		cond, err := cast.ToStringE(m["condition"])
		if err != nil {
			return nil, fmt.Errorf("condition: %w", err)
		}
		label, err := cast.ToStringE(m["label"])
		if err != nil {
			return nil, fmt.Errorf("label: %w", err)
		}
		out = append(out, shelf.BucketConfig{Condition: cond, Label: label})
	}
	return out, nil
}

// namedFormatters mirrors original_source/recipe/shelf.py's
// format_lookup table of named display formats.
var namedFormatters = map[string]ingredient.Formatter{
	"comma":    numberFormatter("%.0f"),
	"dollar":   numberFormatter("$%.0f"),
	"percent":  percentFormatter(0),
	"comma1":   numberFormatter("%.1f"),
	"dollar1":  numberFormatter("$%.1f"),
	"percent1": percentFormatter(1),
	"comma2":   numberFormatter("%.2f"),
	"dollar2":  numberFormatter("$%.2f"),
	"percent2": percentFormatter(2),
}

func numberFormatter(layout string) ingredient.Formatter {
	return func(v interface{}) interface{} {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return v
		}
		return addThousandsCommas(fmt.Sprintf(layout, f))
	}
}

// addThousandsCommas inserts a comma every three digits of the integer
// part of a formatted number, matching format_lookup's "comma"/"dollar"
// styles (e.g. "$,.0f" in original_source/recipe/shelf.py).
func addThousandsCommas(s string) string {
	prefix := ""
	for len(s) > 0 && (s[0] < '0' || s[0] > '9') {
		prefix += string(s[0])
		s = s[1:]
	}
	intPart, rest := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, rest = s[:i], s[i:]
	}
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return prefix + string(out) + rest
}

func percentFormatter(decimals int) ingredient.Formatter {
	layout := fmt.Sprintf("%%.%df%%%%", decimals)
	return func(v interface{}) interface{} {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return v
		}
		return fmt.Sprintf(layout, f*100)
	}
}
