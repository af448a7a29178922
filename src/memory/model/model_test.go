package model

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"assistant", RoleAssistant, false},
		{"system", RoleSystem, false},
		{" User ", RoleUser, false},
		{"ASSISTANT", RoleAssistant, false},
		{"robot", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRole(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewMemoryContextHasNoNilFields(t *testing.T) {
	mc := NewMemoryContext("u1", "conv1")
	if mc.UserID != "u1" || mc.ConversationID != "conv1" {
		t.Fatalf("identifiers not carried: %+v", mc)
	}
	if mc.ImmediateContext == nil || mc.WorkingMemory == nil || mc.SemanticMemories == nil {
		t.Fatalf("collection fields must be non-nil")
	}
	if mc.StructuredData == nil || mc.UserPreferences == nil {
		t.Fatalf("map fields must be non-nil")
	}
}

func TestCloneMetadata(t *testing.T) {
	if got := CloneMetadata(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected non-nil empty clone of nil, got %#v", got)
	}
	src := map[string]any{"a": 1}
	clone := CloneMetadata(src)
	clone["b"] = 2
	if _, ok := src["b"]; ok {
		t.Fatalf("clone must not alias the source map")
	}
	if clone["a"] != 1 {
		t.Fatalf("clone missing source entry")
	}
}
