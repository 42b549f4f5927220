package did

import "testing"

func TestNewEntityIsValid(t *testing.T) {
	d := NewEntity()
	kind, err := ParseKind(d)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if kind != KindEntity {
		t.Fatalf("expected entity kind, got %s", kind)
	}
}

func TestParseKindRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"did:ssi:entity",
		"did:web:entity:4a3f6f2e-8a62-49a7-b9a0-2f6d7745b2a1",
		"did:ssi:vehicle:4a3f6f2e-8a62-49a7-b9a0-2f6d7745b2a1",
		"did:ssi:entity:not-a-uuid",
	}
	for _, c := range cases {
		if IsValid(c) {
			t.Fatalf("expected %q to be invalid", c)
		}
	}
}
