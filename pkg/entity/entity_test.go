package entity

import "testing"

func TestParseRoundTrip(t *testing.T) {
	for _, typ := range All() {
		got, err := Parse(typ.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", typ.String(), err)
		}
		if got != typ {
			t.Fatalf("Parse(%q) = %v, want %v", typ.String(), got, typ)
		}
	}
}

func TestParseDisplayNames(t *testing.T) {
	cases := map[string]Type{
		"Individual":           Person,
		"Insurance Provider":   Insurance,
		"Roadside Unit":        RoadsideUnit,
		"Vehicle Manufacturer": Manufacturer,
		"Car":                  Vehicle,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := Parse("drone"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
