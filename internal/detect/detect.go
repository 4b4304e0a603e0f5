// Package detect discovers structured fields inside log bodies by sampling
// rows from a time range: JSON bodies are parsed and flattened, anything else
// falls back to logfmt-style key=value scanning.
package detect

import (
	"regexp"
	"sort"

	"github.com/valyala/fastjson"
)

// FieldType classifies the values observed for a detected field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeBoolean  FieldType = "boolean"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeDuration FieldType = "duration"
	TypeBytes    FieldType = "bytes"
)

// typePriority orders types for upgrades. Once a field has seen a
// higher-priority value its type never reverts within one detection pass.
var typePriority = map[FieldType]int{
	TypeString:   0,
	TypeBoolean:  1,
	TypeInt:      2,
	TypeFloat:    3,
	TypeDuration: 4,
	TypeBytes:    5,
}

const (
	ParserJSON   = "json"
	ParserLogfmt = "logfmt"
)

var (
	boolRegex     = regexp.MustCompile(`^(true|false)$`)
	intRegex      = regexp.MustCompile(`^[+-]?\d+$`)
	floatRegex    = regexp.MustCompile(`^[+-]?\d+\.\d+$`)
	durationRegex = regexp.MustCompile(`(?i)^\d+(\.\d+)?(ns|us|µs|ms|s|m|h|d)$`)
	bytesRegex    = regexp.MustCompile(`(?i)^\d+(\.\d+)?[KMGT]?B$`)

	logfmtRegex = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.]*)=("[^"]*"|\S+)`)
)

// Classify assigns a single type to one observed value.
func Classify(value string) FieldType {
	switch {
	case boolRegex.MatchString(value):
		return TypeBoolean
	case bytesRegex.MatchString(value):
		return TypeBytes
	case durationRegex.MatchString(value):
		return TypeDuration
	case floatRegex.MatchString(value):
		return TypeFloat
	case intRegex.MatchString(value):
		return TypeInt
	default:
		return TypeString
	}
}

// Field is one discovered body field with its accumulated observations.
type Field struct {
	Label    string
	Type     FieldType
	values   map[string]struct{}
	parsers  map[string]struct{}
	JSONPath []string
}

// Cardinality is the number of distinct values observed.
func (f *Field) Cardinality() int { return len(f.values) }

// Values returns the observed distinct values, sorted.
func (f *Field) Values() []string {
	out := make([]string, 0, len(f.values))
	for v := range f.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Parsers returns which parsers contributed to this field, sorted.
func (f *Field) Parsers() []string {
	out := make([]string, 0, len(f.parsers))
	for p := range f.parsers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Detector samples log bodies into detected fields. Safe for concurrent use;
// each Detect call accumulates into its own state.
type Detector struct {
	parsers fastjson.ParserPool
}

func NewDetector() *Detector {
	return &Detector{}
}

// MaxSampleBodies caps how many bodies one detection pass inspects.
const MaxSampleBodies = 1000

// Detect runs field detection over the sampled bodies and returns the
// discovered fields sorted by label. Bodies that parse as JSON objects are
// flattened recursively; everything else goes through the logfmt scanner.
// Malformed bodies contribute nothing.
func (d *Detector) Detect(bodies []string) []*Field {
	if len(bodies) > MaxSampleBodies {
		bodies = bodies[:MaxSampleBodies]
	}

	acc := make(map[string]*Field)
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	for _, body := range bodies {
		if v, err := p.Parse(body); err == nil && v.Type() == fastjson.TypeObject {
			obj, _ := v.Object()
			walkObject(obj, nil, acc)
			continue
		}
		scanLogfmt(body, acc)
	}

	fields := make([]*Field, 0, len(acc))
	for _, f := range acc {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Label < fields[j].Label })
	return fields
}

// FieldValues returns the sorted distinct values of one detected field, or
// nil when the field was not observed.
func FieldValues(fields []*Field, label string) []string {
	for _, f := range fields {
		if f.Label == label {
			return f.Values()
		}
	}
	return nil
}

// walkObject flattens nested objects into underscore-compound keys, keeping
// the original key path for the field's JSONPath.
func walkObject(obj *fastjson.Object, path []string, acc map[string]*Field) {
	obj.Visit(func(k []byte, v *fastjson.Value) {
		keyPath := append(append([]string(nil), path...), string(k))

		switch v.Type() {
		case fastjson.TypeObject:
			child, _ := v.Object()
			walkObject(child, keyPath, acc)
		case fastjson.TypeString:
			record(acc, keyPath, string(v.GetStringBytes()), ParserJSON)
		case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse:
			record(acc, keyPath, v.String(), ParserJSON)
		default:
			// Arrays and nulls contribute nothing.
		}
	})
}

// scanLogfmt picks key=value tokens out of a flat line.
func scanLogfmt(body string, acc map[string]*Field) {
	for _, m := range logfmtRegex.FindAllStringSubmatch(body, -1) {
		key, value := m[1], m[2]
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		record(acc, []string{key}, value, ParserLogfmt)
	}
}

func record(acc map[string]*Field, path []string, value, parser string) {
	label := flattenKey(path)

	f := acc[label]
	if f == nil {
		f = &Field{
			Label:   label,
			Type:    Classify(value),
			values:  make(map[string]struct{}),
			parsers: make(map[string]struct{}),
		}
		acc[label] = f
	}
	if parser == ParserJSON && f.JSONPath == nil {
		f.JSONPath = path
	}

	f.values[value] = struct{}{}
	f.parsers[parser] = struct{}{}

	if t := Classify(value); typePriority[t] > typePriority[f.Type] {
		f.Type = t
	}
}

func flattenKey(path []string) string {
	if len(path) == 1 {
		return path[0]
	}
	key := path[0]
	for _, p := range path[1:] {
		key += "_" + p
	}
	return key
}
