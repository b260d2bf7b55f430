package cms

import (
	"encoding/json"
	"testing"
)

func TestValue_UnmarshalSniffsKind(t *testing.T) {
	var data map[string]Value
	input := `{"title":"A","views":42.5,"featured":true,"tags":["x","y"],"meta":null}`
	if err := json.Unmarshal([]byte(input), &data); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if s, ok := data["title"].AsText(); !ok || s != "A" {
		t.Errorf("title = %v (kind %v), want text A", data["title"], data["title"].Kind())
	}
	if f, ok := data["views"].AsNumber(); !ok || f != 42.5 {
		t.Errorf("views = %v, want number 42.5", data["views"])
	}
	if b, ok := data["featured"].AsBool(); !ok || !b {
		t.Errorf("featured = %v, want bool true", data["featured"])
	}
	if data["tags"].Kind() != KindRaw {
		t.Errorf("tags kind = %v, want KindRaw (arrays preserved verbatim)", data["tags"].Kind())
	}
	if data["meta"].Kind() != KindRaw {
		t.Errorf("meta kind = %v, want KindRaw (null preserved)", data["meta"].Kind())
	}
}

func TestValue_MarshalsAsBareScalar(t *testing.T) {
	data := map[string]Value{
		"title":    Text("hello"),
		"views":    Number(7),
		"featured": Bool(false),
	}

	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	// Round-trip through plain interface decoding: no wrapper objects.
	var plain map[string]any
	if err := json.Unmarshal(out, &plain); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if plain["title"] != "hello" || plain["views"] != float64(7) || plain["featured"] != false {
		t.Errorf("marshaled form = %v, want bare scalars", plain)
	}
}

func TestValue_RawRoundTrip(t *testing.T) {
	original := json.RawMessage(`{"nested":{"deep":[1,2,3]}}`)
	v := Raw(original)

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(out) != string(original) {
		t.Errorf("raw round-trip = %s, want %s", out, original)
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Text("x"), "x"},
		{Number(3.5), "3.5"},
		{Number(10), "10"},
		{Bool(true), "true"},
		{Raw(json.RawMessage(`[1]`)), "[1]"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
