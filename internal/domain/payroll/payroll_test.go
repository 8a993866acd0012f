package payroll

import "testing"

func newDefault(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultTable())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return c
}

func TestCalculate(t *testing.T) {
	c := newDefault(t)

	tests := []struct {
		role string
		day  string
		want int
	}{
		{"ajudante de bar", "quarta", 150},
		{"limpeza", "domingo", 170},
		{"Bartender", "sábado", 190},
		{"bartender", "domingo", 190},
		{"garcom", "segunda", 170},
		{"GARÇOM", "Sabado", 190},
		{"chefe de salão", "sexta", 190},
		{"Chefe de Salao", "domingo", 220},
		{"  chefe   de cozinha ", "terça", 190},
		{"dj", "sábado", 0},
		{"bartender", "feriado", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := c.Calculate(tt.role, tt.day); got != tt.want {
			t.Errorf("Calculate(%q, %q) = %d, want %d", tt.role, tt.day, got, tt.want)
		}
	}
}

func TestCalculate_EveryWeekdayPaid(t *testing.T) {
	c := newDefault(t)
	for _, day := range []string{"segunda", "terça", "quarta", "quinta", "sexta"} {
		if got := c.Calculate("cumim", day); got != 150 {
			t.Errorf("Calculate(cumim, %s) = %d, want 150", day, got)
		}
	}
}

func TestNewCalculator_CustomTable(t *testing.T) {
	c, err := NewCalculator(Table{
		Tiers:       []Tier{{Name: "unico", Weekday: 100, Weekend: 200, Roles: []string{"seguranca"}}},
		WeekendDays: []string{"sexta", "sábado"},
		WeekDays:    []string{"quinta"},
	})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	if got := c.Calculate("Segurança", "sexta"); got != 200 {
		t.Errorf("sexta = %d, want 200", got)
	}
	if got := c.Calculate("segurança", "quinta"); got != 100 {
		t.Errorf("quinta = %d, want 100", got)
	}
	if got := c.Calculate("segurança", "segunda"); got != 0 {
		t.Errorf("segunda = %d, want 0", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{"no tiers", Table{}},
		{"duplicate role", Table{Tiers: []Tier{
			{Name: "a", Roles: []string{"Garçom"}},
			{Name: "b", Roles: []string{"garcom"}},
		}}},
		{"negative rate", Table{Tiers: []Tier{{Name: "a", Weekday: -1, Roles: []string{"x"}}}}},
		{"day twice", Table{
			Tiers:       []Tier{{Name: "a", Roles: []string{"x"}}},
			WeekDays:    []string{"sexta"},
			WeekendDays: []string{"Sexta"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.table.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestKnows(t *testing.T) {
	c := newDefault(t)
	if !c.Knows("Cozinheiro") {
		t.Error("cozinheiro must be known")
	}
	if c.Knows("dj") {
		t.Error("dj must be unknown")
	}
}
