// Package payroll computes the flat payment a worker earns for one shift.
// The amount depends only on the role and on whether the work day is a
// weekend day; the rates are data, so a new event can swap the table
// without a code change.
package payroll

import (
	"fmt"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/fold"
)

// Tier groups roles paid the same rates.
type Tier struct {
	Name    string   `yaml:"name"`
	Weekday int      `yaml:"weekday"`
	Weekend int      `yaml:"weekend"`
	Roles   []string `yaml:"roles"`
}

// Table is the full pay configuration.
type Table struct {
	Tiers []Tier `yaml:"tiers"`
	// WeekendDays lists the day names paid at the weekend rate.
	WeekendDays []string `yaml:"weekend_days"`
	// WeekDays lists the day names paid at the weekday rate.
	WeekDays []string `yaml:"week_days"`
}

// DefaultTable returns the rates used at the Feirinha events.
func DefaultTable() Table {
	return Table{
		Tiers: []Tier{
			{
				Name:    "apoio",
				Weekday: 150,
				Weekend: 170,
				Roles:   []string{"ajudante de bar", "limpeza", "cumim", "auxiliar de cozinha"},
			},
			{
				Name:    "operacao",
				Weekday: 170,
				Weekend: 190,
				Roles:   []string{"bartender", "recepcionista", "garçom", "cozinheiro"},
			},
			{
				Name:    "chefia",
				Weekday: 190,
				Weekend: 220,
				Roles:   []string{"chefe de bar", "chefe de cozinha", "chefe de salão"},
			},
		},
		WeekendDays: []string{"sábado", "domingo"},
		WeekDays:    []string{"segunda", "terça", "quarta", "quinta", "sexta"},
	}
}

// Validate checks that no role or day is listed twice.
func (t Table) Validate() error {
	if len(t.Tiers) == 0 {
		return fmt.Errorf("pay table has no tiers")
	}
	roles := make(map[string]string)
	for _, tier := range t.Tiers {
		if tier.Weekday < 0 || tier.Weekend < 0 {
			return fmt.Errorf("tier %q: negative rate", tier.Name)
		}
		for _, role := range tier.Roles {
			key := fold.Key(role)
			if key == "" {
				return fmt.Errorf("tier %q: empty role", tier.Name)
			}
			if prev, ok := roles[key]; ok {
				return fmt.Errorf("role %q listed in tiers %q and %q", role, prev, tier.Name)
			}
			roles[key] = tier.Name
		}
	}
	days := make(map[string]bool)
	for _, d := range append(append([]string{}, t.WeekDays...), t.WeekendDays...) {
		key := fold.Key(d)
		if days[key] {
			return fmt.Errorf("day %q listed twice", d)
		}
		days[key] = true
	}
	return nil
}

type rates struct {
	weekday int
	weekend int
}

// Calculator answers pay lookups against a compiled Table.
// Safe for concurrent use; it is never mutated after construction.
type Calculator struct {
	roles   map[string]rates
	weekend map[string]bool
	weekday map[string]bool
}

// NewCalculator compiles table into a Calculator.
func NewCalculator(table Table) (*Calculator, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	c := &Calculator{
		roles:   make(map[string]rates),
		weekend: make(map[string]bool),
		weekday: make(map[string]bool),
	}
	for _, tier := range table.Tiers {
		for _, role := range tier.Roles {
			c.roles[fold.Key(role)] = rates{weekday: tier.Weekday, weekend: tier.Weekend}
		}
	}
	for _, d := range table.WeekendDays {
		c.weekend[fold.Key(d)] = true
	}
	for _, d := range table.WeekDays {
		c.weekday[fold.Key(d)] = true
	}
	return c, nil
}

// Calculate returns the payment for role on dayOfWeek. Both arguments are
// matched ignoring case, accents and extra whitespace. An unknown role or
// day name yields 0.
func (c *Calculator) Calculate(role, dayOfWeek string) int {
	r, ok := c.roles[fold.Key(role)]
	if !ok {
		return 0
	}
	day := fold.Key(dayOfWeek)
	switch {
	case c.weekend[day]:
		return r.weekend
	case c.weekday[day]:
		return r.weekday
	default:
		return 0
	}
}

// Knows reports whether role appears in any tier.
func (c *Calculator) Knows(role string) bool {
	_, ok := c.roles[fold.Key(role)]
	return ok
}
