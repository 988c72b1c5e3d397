package config

import (
	"context"
	"reflect"
	"testing"
)

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	if got := sr.ListSchemas(); !reflect.DeepEqual(got, []string{SchemaProfile, SchemaSettings}) {
		t.Errorf("ListSchemas() = %v", got)
	}

	tests := []struct {
		name    string
		doc     map[string]interface{}
		wantErr bool
	}{
		{
			name: "minimal",
			doc:  map[string]interface{}{"name": "default"},
		},
		{
			name: "full",
			doc: map[string]interface{}{
				"name":               "default",
				"initialOptions":     map[string]interface{}{"volume": int64(50), "mute": false, "playlist": []interface{}{"a"}},
				"observedProperties": map[string]interface{}{"pause": "flag"},
				"properties":         map[string]interface{}{"speed": 1.5},
				"logLevel":           "debug",
				"policies":           []interface{}{"./policies"},
				"window":             "xlib:0x10",
			},
		},
		{
			name:    "bad name",
			doc:     map[string]interface{}{"name": "has space"},
			wantErr: true,
		},
		{
			name:    "bad window",
			doc:     map[string]interface{}{"name": "a", "window": "nowhere"},
			wantErr: true,
		},
		{
			name:    "nested property",
			doc:     map[string]interface{}{"name": "a", "properties": map[string]interface{}{"x": map[string]interface{}{}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateProfileDocument(ctx, tt.doc)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProfileDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("broken", "#X: {", "#X"); err == nil {
		t.Error("RegisterSchema() accepted invalid CUE")
	}
	if err := sr.RegisterSchema("missing", "#X: string", "#Y"); err == nil {
		t.Error("RegisterSchema() accepted a missing definition")
	}
	if err := sr.RegisterSchema("custom", "#X: {n: int}", "#X"); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "custom", map[string]interface{}{"n": "one"}); err == nil {
		t.Error("ValidateAgainstSchema() accepted a string for int")
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "nope", nil); err == nil {
		t.Error("ValidateAgainstSchema() found an unregistered schema")
	}
}
