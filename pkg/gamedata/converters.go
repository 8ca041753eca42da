package gamedata

import (
	"fmt"
	"strconv"
)

// Converter turns one XML attribute's raw string value into a typed Go
// value for a single field. DefaultValue is returned whenever the
// attribute is absent or its raw value is empty, so every field always
// gets a well-defined zero rather than nil or an ad hoc empty collection
// — unless DefaultValue itself is that empty collection.
type Converter interface {
	Convert(raw string) (any, error)
	DefaultValue() any
}

type intConverter struct{}

func (intConverter) Convert(raw string) (any, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid int %q: %w", raw, err)
	}
	return v, nil
}
func (intConverter) DefaultValue() any { return 0 }

type int64Converter struct{}

func (int64Converter) Convert(raw string) (any, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid int64 %q: %w", raw, err)
	}
	return v, nil
}
func (int64Converter) DefaultValue() any { return int64(0) }

type float64Converter struct{}

func (float64Converter) Convert(raw string) (any, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid float64 %q: %w", raw, err)
	}
	return v, nil
}
func (float64Converter) DefaultValue() any { return float64(0) }

type float32Converter struct{}

func (float32Converter) Convert(raw string) (any, error) {
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid float32 %q: %w", raw, err)
	}
	return float32(v), nil
}
func (float32Converter) DefaultValue() any { return float32(0) }

type boolConverter struct{}

func (boolConverter) Convert(raw string) (any, error) {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid bool %q: %w", raw, err)
	}
	return v, nil
}
func (boolConverter) DefaultValue() any { return false }

type int16Converter struct{}

func (int16Converter) Convert(raw string) (any, error) {
	v, err := strconv.ParseInt(raw, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid int16 %q: %w", raw, err)
	}
	return int16(v), nil
}
func (int16Converter) DefaultValue() any { return int16(0) }

type int8Converter struct{}

func (int8Converter) Convert(raw string) (any, error) {
	v, err := strconv.ParseInt(raw, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid int8 %q: %w", raw, err)
	}
	return int8(v), nil
}
func (int8Converter) DefaultValue() any { return int8(0) }

type stringConverter struct{}

func (stringConverter) Convert(raw string) (any, error) { return raw, nil }
func (stringConverter) DefaultValue() any               { return "" }

// CSVConverter splits a delimited attribute (the common representation for
// a repeated value inside a single XML attribute) into a string slice.
// Its DefaultValue is an empty, non-nil slice, matching the "empty
// collection" exception in this package's empty-input default rule.
type CSVConverter struct {
	Sep string
}

func (c CSVConverter) Convert(raw string) (any, error) {
	sep := c.Sep
	if sep == "" {
		sep = ","
	}
	parts := splitNonEmpty(raw, sep)
	return parts, nil
}
func (c CSVConverter) DefaultValue() any { return []string{} }

// CSVIntConverter splits a comma-separated attribute into a []int — the
// comma-separated int list layout.
type CSVIntConverter struct {
	Sep string
}

func (c CSVIntConverter) Convert(raw string) (any, error) {
	sep := c.Sep
	if sep == "" {
		sep = ","
	}
	parts := splitNonEmpty(raw, sep)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int list element %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
func (c CSVIntConverter) DefaultValue() any { return []int{} }

// IntMapConverter parses a "k:v,k:v" attribute into a map[int]int — the
// int-int map layout.
type IntMapConverter struct {
	PairSep string
	KVSep   string
}

func (c IntMapConverter) Convert(raw string) (any, error) {
	pairSep := c.PairSep
	if pairSep == "" {
		pairSep = ","
	}
	kvSep := c.KVSep
	if kvSep == "" {
		kvSep = ":"
	}

	out := make(map[int]int)
	for _, pair := range splitNonEmpty(raw, pairSep) {
		kv := splitNonEmpty(pair, kvSep)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid int map pair %q", pair)
		}
		k, err := strconv.Atoi(kv[0])
		if err != nil {
			return nil, fmt.Errorf("invalid int map key %q: %w", kv[0], err)
		}
		v, err := strconv.Atoi(kv[1])
		if err != nil {
			return nil, fmt.Errorf("invalid int map value %q: %w", kv[1], err)
		}
		out[k] = v
	}
	return out, nil
}
func (c IntMapConverter) DefaultValue() any { return map[int]int{} }

// Array2DConverter parses a "a,b,c;d,e" attribute into a [][]int — the
// 2D int array layout, rows separated by ";" and columns by ",".
type Array2DConverter struct {
	RowSep string
	ColSep string
}

func (c Array2DConverter) Convert(raw string) (any, error) {
	rowSep := c.RowSep
	if rowSep == "" {
		rowSep = ";"
	}
	colSep := c.ColSep
	if colSep == "" {
		colSep = ","
	}

	var out [][]int
	for _, row := range splitNonEmpty(raw, rowSep) {
		cols := splitNonEmpty(row, colSep)
		vals := make([]int, 0, len(cols))
		for _, col := range cols {
			v, err := strconv.Atoi(col)
			if err != nil {
				return nil, fmt.Errorf("invalid 2D int array element %q: %w", col, err)
			}
			vals = append(vals, v)
		}
		out = append(out, vals)
	}
	if out == nil {
		out = [][]int{}
	}
	return out, nil
}
func (c Array2DConverter) DefaultValue() any { return [][]int{} }

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return []string{}
	}
	var out []string
	start := 0
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			out = append(out, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	out = append(out, s[start:])
	return out
}

// builtinConverters are keyed by reflect.Kind.String() and used as the
// primitive-coercion fallback for fields without an explicit converter tag.
var builtinConverters = map[string]Converter{
	"int":     intConverter{},
	"int8":    int8Converter{},
	"int16":   int16Converter{},
	"int32":   intConverter{},
	"int64":   int64Converter{},
	"uint":    intConverter{},
	"float32": float32Converter{},
	"float64": float64Converter{},
	"bool":    boolConverter{},
	"string":  stringConverter{},
}

// converterRegistry is the registry of converters addressable by name via a
// field's `conv:"name"` tag, for types that need conversion logic the
// primitive kind table can't express (CSV lists, timestamps, and so on).
type converterRegistry struct {
	byName map[string]Converter
}

func newConverterRegistry() *converterRegistry {
	return &converterRegistry{byName: map[string]Converter{
		"csv":     CSVConverter{},
		"csvint":  CSVIntConverter{},
		"intmap":  IntMapConverter{},
		"array2d": Array2DConverter{},
	}}
}

func (r *converterRegistry) Register(name string, c Converter) {
	r.byName[name] = c
}

func (r *converterRegistry) Get(name string) (Converter, bool) {
	c, ok := r.byName[name]
	return c, ok
}
