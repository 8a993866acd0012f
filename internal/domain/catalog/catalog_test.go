package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault_Roles(t *testing.T) {
	c := Default()

	roles, ok := c.Roles("salao")
	if !ok {
		t.Fatal("Salão must be found without accent")
	}
	want := []string{"cumim", "garçom", "recepcionista", "limpeza", "chefe de salão"}
	if !reflect.DeepEqual(roles, want) {
		t.Errorf("Roles(salao) = %v, want %v", roles, want)
	}

	if _, ok := c.Roles("Portaria"); ok {
		t.Error("Portaria must be unknown")
	}
}

func TestRoles_ReturnsCopy(t *testing.T) {
	c := Default()
	roles, _ := c.Roles("Bar")
	roles[0] = "mutated"
	again, _ := c.Roles("Bar")
	if again[0] != "ajudante de bar" {
		t.Errorf("catalog mutated through returned slice: %v", again)
	}
}

func TestAllows(t *testing.T) {
	c := Default()
	tests := []struct {
		sector, role string
		want         bool
	}{
		{"Bar", "Bartender", true},
		{"COZINHA", "chefe de cozinha", true},
		{"Salão", "Garcom", true},
		{"Bar", "cozinheiro", false},
		{"Portaria", "bartender", false},
	}
	for _, tt := range tests {
		if got := c.Allows(tt.sector, tt.role); got != tt.want {
			t.Errorf("Allows(%q, %q) = %v, want %v", tt.sector, tt.role, got, tt.want)
		}
	}
}

func TestMatch_CanonicalSpelling(t *testing.T) {
	sector, role, ok := Default().Match("salao", "GARCOM")
	if !ok {
		t.Fatal("expected match")
	}
	if sector != "Salão" || role != "garçom" {
		t.Errorf("Match = %q, %q", sector, role)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("empty catalog must fail")
	}
	if _, err := New([]Sector{{Name: "Bar", Roles: []string{"a"}}, {Name: "bar", Roles: []string{"b"}}}); err == nil {
		t.Error("duplicate sector must fail")
	}
	if _, err := New([]Sector{{Name: "Bar"}}); err == nil {
		t.Error("sector without roles must fail")
	}
}

func TestLoad(t *testing.T) {
	doc := `
sectors:
  - name: Portaria
    roles: [segurança, recepcionista]
pay:
  tiers:
    - name: unico
      weekday: 100
      weekend: 120
      roles: [segurança, recepcionista]
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cat, table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cat.Sectors(); !reflect.DeepEqual(got, []string{"Portaria"}) {
		t.Errorf("Sectors = %v", got)
	}
	if len(table.Tiers) != 1 || table.Tiers[0].Weekend != 120 {
		t.Errorf("unexpected tiers: %+v", table.Tiers)
	}
	if len(table.WeekendDays) != 2 {
		t.Errorf("weekend days must default, got %v", table.WeekendDays)
	}
}

func TestParse_PayOnly(t *testing.T) {
	cat, table, err := Parse([]byte("pay:\n  weekend_days: [sexta, sábado, domingo]\n  week_days: [segunda, terça, quarta, quinta]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cat.Sectors()) != 3 {
		t.Errorf("sectors must default, got %v", cat.Sectors())
	}
	if len(table.Tiers) != 3 || len(table.WeekendDays) != 3 {
		t.Errorf("unexpected table: %+v", table)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, _, err := Parse([]byte("sectors: [")); err == nil {
		t.Error("malformed YAML must fail")
	}
	if _, _, err := Parse([]byte("pay:\n  week_days: [sábado]\n")); err == nil {
		t.Error("day in both lists must fail")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}
