package profile

import "testing"

func TestLoad_AllBuiltins(t *testing.T) {
	for _, name := range Names() {
		p, err := Load(name)
		if err != nil {
			t.Errorf("Load(%q) error: %v", name, err)
			continue
		}
		if p.Name != name {
			t.Errorf("Load(%q).Name = %q, want %q", name, p.Name, name)
		}
		if p.SystemPromptAddendum == "" {
			t.Errorf("Load(%q).SystemPromptAddendum is empty", name)
		}
		if p.Description == "" {
			t.Errorf("Load(%q).Description is empty", name)
		}
	}
}

func TestLoad_Unknown(t *testing.T) {
	_, err := Load("nonexistent")
	if err == nil {
		t.Fatal("Load(\"nonexistent\") expected error, got nil")
	}
}

func TestLoad_RepairOnViolation(t *testing.T) {
	cases := []struct {
		name   string
		repair bool
	}{
		{"general", true},
		{"strict", false},
		{"tabular", true},
	}
	for _, c := range cases {
		p, err := Load(c.name)
		if err != nil {
			t.Fatalf("Load(%q) error: %v", c.name, err)
		}
		if p.RepairOnViolation != c.repair {
			t.Errorf("Load(%q).RepairOnViolation = %v, want %v", c.name, p.RepairOnViolation, c.repair)
		}
	}
}
