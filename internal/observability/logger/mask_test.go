package logger

import "testing"

func TestMaskJSON(t *testing.T) {
	input := map[string]any{
		"password":       "hunter2",
		"token":          "abc12345",
		"customer_email": "jane@example.com",
		"nested": map[string]any{
			"api_key": "key_12345678",
		},
	}
	masked := MaskJSON(input)
	if masked["password"] != "****ter2" {
		t.Fatalf("expected masked password, got %v", masked["password"])
	}
	if masked["token"] != "****2345" {
		t.Fatalf("expected masked token, got %v", masked["token"])
	}
	if masked["customer_email"] != "****.com" {
		t.Fatalf("expected masked email, got %v", masked["customer_email"])
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map")
	}
	if nested["api_key"] != "****5678" {
		t.Fatalf("expected masked api_key, got %v", nested["api_key"])
	}
	// The input map is never mutated.
	if input["password"] != "hunter2" {
		t.Fatalf("input mutated: %v", input["password"])
	}
}

func TestMaskJSONNonStringSecret(t *testing.T) {
	masked := MaskJSON(map[string]any{"secret": 12345})
	if masked["secret"] != "****" {
		t.Fatalf("expected opaque mask for non-string secret, got %v", masked["secret"])
	}
}
