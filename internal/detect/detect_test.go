package detect

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		value    string
		expected FieldType
	}{
		{"hello", TypeString},
		{"true", TypeBoolean},
		{"false", TypeBoolean},
		{"42", TypeInt},
		{"-7", TypeInt},
		{"3.14", TypeFloat},
		{"500ms", TypeDuration},
		{"2h", TypeDuration},
		{"1024B", TypeBytes},
		{"5KB", TypeBytes},
		{"2.5GB", TypeBytes},
		{"truely", TypeString},
		{"1.2.3", TypeString},
	}

	for _, tt := range tests {
		if got := Classify(tt.value); got != tt.expected {
			t.Errorf("Classify(%q) = %s, want %s", tt.value, got, tt.expected)
		}
	}
}

func TestDetectJSON(t *testing.T) {
	d := NewDetector()
	fields := d.Detect([]string{
		`{"level":"info","status":200,"http":{"method":"GET","duration":"12ms"}}`,
	})

	byLabel := make(map[string]*Field)
	for _, f := range fields {
		byLabel[f.Label] = f
	}

	if f := byLabel["level"]; f == nil || f.Type != TypeString {
		t.Errorf("level field = %+v, want string", f)
	}
	if f := byLabel["status"]; f == nil || f.Type != TypeInt {
		t.Errorf("status field = %+v, want int", f)
	}

	method := byLabel["http_method"]
	if method == nil {
		t.Fatalf("nested keys must flatten with underscores, have %v", labels(fields))
	}
	if !reflect.DeepEqual(method.JSONPath, []string{"http", "method"}) {
		t.Errorf("JSONPath = %v, want [http method]", method.JSONPath)
	}
	if f := byLabel["http_duration"]; f == nil || f.Type != TypeDuration {
		t.Errorf("http_duration field = %+v, want duration", f)
	}
}

func TestDetectLogfmtFallback(t *testing.T) {
	d := NewDetector()
	fields := d.Detect([]string{
		`level=warn msg="disk almost full" free=512MB`,
	})

	byLabel := make(map[string]*Field)
	for _, f := range fields {
		byLabel[f.Label] = f
	}

	if f := byLabel["msg"]; f == nil || f.Values()[0] != "disk almost full" {
		t.Errorf("quoted logfmt value should lose its quotes, got %+v", f)
	}
	if f := byLabel["free"]; f == nil || f.Type != TypeBytes {
		t.Errorf("free field = %+v, want bytes", f)
	}
	if f := byLabel["level"]; f == nil || f.Parsers()[0] != ParserLogfmt {
		t.Errorf("parser attribution missing, got %+v", f)
	}
}

func TestDetectTypeUpgradeMonotonic(t *testing.T) {
	d := NewDetector()
	fields := d.Detect([]string{
		`{"value":"5"}`,
		`{"value":"5.5"}`,
		`{"value":"6"}`,
	})

	if len(fields) != 1 {
		t.Fatalf("got %d fields, want 1", len(fields))
	}
	if fields[0].Type != TypeFloat {
		t.Errorf("type = %s, want float (int must not win back after upgrade)", fields[0].Type)
	}
	if fields[0].Cardinality() != 3 {
		t.Errorf("cardinality = %d, want 3", fields[0].Cardinality())
	}
}

func TestDetectMixedParsers(t *testing.T) {
	d := NewDetector()
	fields := d.Detect([]string{
		`{"level":"info"}`,
		`level=error something happened`,
		`not structured at all`,
	})

	byLabel := make(map[string]*Field)
	for _, f := range fields {
		byLabel[f.Label] = f
	}

	level := byLabel["level"]
	if level == nil {
		t.Fatal("level not detected")
	}
	if !reflect.DeepEqual(level.Parsers(), []string{"json", "logfmt"}) {
		t.Errorf("parsers = %v, want both", level.Parsers())
	}
	if !reflect.DeepEqual(level.Values(), []string{"error", "info"}) {
		t.Errorf("values = %v", level.Values())
	}
}

func TestDetectJSONPathAfterLogfmtFirstSight(t *testing.T) {
	d := NewDetector()
	fields := d.Detect([]string{
		`level=warn disk low`,
		`{"level":"error"}`,
	})

	byLabel := make(map[string]*Field)
	for _, f := range fields {
		byLabel[f.Label] = f
	}

	level := byLabel["level"]
	if level == nil {
		t.Fatal("level not detected")
	}
	// The JSON path is recorded even when logfmt saw the field first.
	if !reflect.DeepEqual(level.JSONPath, []string{"level"}) {
		t.Errorf("JSONPath = %v, want [level]", level.JSONPath)
	}
}

func TestFieldValues(t *testing.T) {
	d := NewDetector()
	fields := d.Detect([]string{`{"region":"eu"}`, `{"region":"us"}`})

	if got := FieldValues(fields, "region"); !reflect.DeepEqual(got, []string{"eu", "us"}) {
		t.Errorf("FieldValues = %v", got)
	}
	if got := FieldValues(fields, "absent"); got != nil {
		t.Errorf("absent field should return nil, got %v", got)
	}
}

func labels(fields []*Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Label
	}
	return out
}
