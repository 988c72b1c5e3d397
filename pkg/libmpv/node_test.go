package libmpv

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMapKeepsOrderAndReplacesDuplicates(t *testing.T) {
	m := Map(
		MapEntry{Key: "b", Value: Int64(1)},
		MapEntry{Key: "a", Value: Int64(2)},
		MapEntry{Key: "b", Value: Int64(3)},
	)

	entries := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Key != "b" || entries[1].Key != "a" {
		t.Errorf("keys = %s,%s; want b,a", entries[0].Key, entries[1].Key)
	}
	if v, _ := m.Lookup("b"); !v.Equal(Int64(3)) {
		t.Errorf("Lookup(b) = %v, want 3", v.Interface())
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported ok")
	}
}

func TestNodeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Node
		want bool
	}{
		{"same string", String("x"), String("x"), true},
		{"kind differs", Int64(1), Double(1), false},
		{"nan", Double(math.NaN()), Double(math.NaN()), true},
		{"map order matters", Map(MapEntry{"a", Int64(1)}, MapEntry{"b", Int64(2)}),
			Map(MapEntry{"b", Int64(2)}, MapEntry{"a", Int64(1)}), false},
		{"byte arrays", ByteArray([]byte{1, 2}), ByteArray([]byte{1, 2}), true},
		{"array length", Array(Int64(1)), Array(Int64(1), Int64(2)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNodeMarshalJSON(t *testing.T) {
	n := Map(
		MapEntry{Key: "title", Value: String("clip")},
		MapEntry{Key: "duration", Value: Double(12.5)},
		MapEntry{Key: "tracks", Value: Array(Int64(1), Int64(2))},
		MapEntry{Key: "cover", Value: ByteArray([]byte{7, 8})},
		MapEntry{Key: "chapter", Value: None()},
		MapEntry{Key: "paused", Value: Flag(true)},
		MapEntry{Key: "speed", Value: Double(math.Inf(1))},
	)

	got, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"title":"clip","duration":12.5,"tracks":[1,2],"cover":[7,8],"chapter":null,"paused":true,"speed":null}`
	if string(got) != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestParseJSON(t *testing.T) {
	t.Run("keeps object order", func(t *testing.T) {
		n, err := ParseJSON([]byte(`{"volume":50,"mute":false,"speed":1.25,"af":"lavfi=[loudnorm]","list":[1,"x",null]}`))
		if err != nil {
			t.Fatalf("ParseJSON() error = %v", err)
		}
		want := Map(
			MapEntry{Key: "volume", Value: Int64(50)},
			MapEntry{Key: "mute", Value: Flag(false)},
			MapEntry{Key: "speed", Value: Double(1.25)},
			MapEntry{Key: "af", Value: String("lavfi=[loudnorm]")},
			MapEntry{Key: "list", Value: Array(Int64(1), String("x"), None())},
		)
		if !n.Equal(want) {
			t.Errorf("ParseJSON() = %s, want %s", mustJSON(t, n), mustJSON(t, want))
		}
	})

	t.Run("integral exponent stays double", func(t *testing.T) {
		n, err := ParseJSON([]byte(`1e3`))
		if err != nil {
			t.Fatalf("ParseJSON() error = %v", err)
		}
		if n.Kind() != NodeDouble {
			t.Errorf("Kind() = %v, want double", n.Kind())
		}
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		if _, err := ParseJSON([]byte(`1 2`)); err == nil {
			t.Error("ParseJSON() accepted trailing data")
		}
	})

	t.Run("unmarshal into node", func(t *testing.T) {
		var payload struct {
			Value Node `json:"value"`
		}
		if err := json.Unmarshal([]byte(`{"value":["loadfile","a.mkv"]}`), &payload); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if !payload.Value.Equal(Array(String("loadfile"), String("a.mkv"))) {
			t.Errorf("Value = %s", mustJSON(t, payload.Value))
		}
	})
}

func TestFromInterface(t *testing.T) {
	n, err := FromInterface(map[string]interface{}{"b": 1, "a": []interface{}{true, 2.5}})
	if err != nil {
		t.Fatalf("FromInterface() error = %v", err)
	}
	want := Map(
		MapEntry{Key: "a", Value: Array(Flag(true), Double(2.5))},
		MapEntry{Key: "b", Value: Int64(1)},
	)
	if !n.Equal(want) {
		t.Errorf("FromInterface() = %s, want %s", mustJSON(t, n), mustJSON(t, want))
	}

	if _, err := FromInterface(struct{}{}); !IsUnsupported(err) {
		t.Errorf("FromInterface(struct) error = %v, want unsupported", err)
	}
}

func TestEncodeOptionValue(t *testing.T) {
	tests := []struct {
		name   string
		value  Node
		want   string
		wantOK bool
	}{
		{"string", String("gpu"), "gpu", true},
		{"true", Flag(true), "yes", true},
		{"false", Flag(false), "no", true},
		{"int", Int64(50), "50", true},
		{"double", Double(1.5), "1.5", true},
		{"whole double", Double(2), "2", true},
		{"none skipped", None(), "", false},
		{"array skipped", Array(Int64(1)), "", false},
		{"map skipped", Map(), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EncodeOptionValue(tt.value)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("EncodeOptionValue() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"string": FormatString,
		"flag":   FormatFlag,
		"int64":  FormatInt64,
		"double": FormatDouble,
		"node":   FormatNode,
	} {
		got, err := ParseFormat(name)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", name, got, err, want)
		}
	}

	if _, err := ParseFormat("osd"); !IsUnsupported(err) {
		t.Errorf("ParseFormat(osd) error = %v, want unsupported", err)
	}
}
