// Package catalog describes the sectors of an event and the roles each
// sector staffs, together with the pay table for those roles.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/feirinha/checkin-module/internal/domain/fold"
	"github.com/bigkaa/feirinha/checkin-module/internal/domain/payroll"
)

// Sector is a work area with its roles in display order.
type Sector struct {
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// File is the on-disk layout of a catalog file.
type File struct {
	Sectors []Sector      `yaml:"sectors"`
	Pay     payroll.Table `yaml:"pay"`
}

// Catalog answers sector and role lookups. Immutable after construction.
type Catalog struct {
	sectors []Sector
	index   map[string]int
}

// Default returns the sectors used by the check-in form.
func Default() *Catalog {
	c, _ := New([]Sector{
		{Name: "Bar", Roles: []string{"ajudante de bar", "bartender", "chefe de bar"}},
		{Name: "Cozinha", Roles: []string{"auxiliar de cozinha", "cozinheiro", "chefe de cozinha"}},
		{Name: "Salão", Roles: []string{"cumim", "garçom", "recepcionista", "limpeza", "chefe de salão"}},
	})
	return c
}

// New builds a catalog. Sector names must be unique after folding and
// every sector needs at least one role.
func New(sectors []Sector) (*Catalog, error) {
	if len(sectors) == 0 {
		return nil, fmt.Errorf("catalog has no sectors")
	}
	c := &Catalog{
		sectors: make([]Sector, 0, len(sectors)),
		index:   make(map[string]int, len(sectors)),
	}
	for _, s := range sectors {
		key := fold.Key(s.Name)
		if key == "" {
			return nil, fmt.Errorf("sector with empty name")
		}
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("sector %q listed twice", s.Name)
		}
		if len(s.Roles) == 0 {
			return nil, fmt.Errorf("sector %q has no roles", s.Name)
		}
		roles := make([]string, len(s.Roles))
		copy(roles, s.Roles)
		c.index[key] = len(c.sectors)
		c.sectors = append(c.sectors, Sector{Name: s.Name, Roles: roles})
	}
	return c, nil
}

// Sectors returns sector names in declaration order.
func (c *Catalog) Sectors() []string {
	names := make([]string, len(c.sectors))
	for i, s := range c.sectors {
		names[i] = s.Name
	}
	return names
}

// Roles returns the roles of sector. The caller owns the returned slice.
func (c *Catalog) Roles(sector string) ([]string, bool) {
	i, ok := c.index[fold.Key(sector)]
	if !ok {
		return nil, false
	}
	roles := make([]string, len(c.sectors[i].Roles))
	copy(roles, c.sectors[i].Roles)
	return roles, true
}

// Allows reports whether role belongs to sector.
func (c *Catalog) Allows(sector, role string) bool {
	_, _, ok := c.Match(sector, role)
	return ok
}

// Match returns the catalog spelling of sector and role when role
// belongs to sector.
func (c *Catalog) Match(sector, role string) (sectorName, roleName string, ok bool) {
	i, found := c.index[fold.Key(sector)]
	if !found {
		return "", "", false
	}
	key := fold.Key(role)
	for _, r := range c.sectors[i].Roles {
		if fold.Key(r) == key {
			return c.sectors[i].Name, r, true
		}
	}
	return "", "", false
}

// Load reads a YAML catalog file. Missing sections fall back to the
// defaults, so a file may override only the pay table.
func Load(path string) (*Catalog, payroll.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, payroll.Table{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, payroll.Table, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, payroll.Table{}, fmt.Errorf("decode catalog: %w", err)
	}

	cat := Default()
	if len(f.Sectors) > 0 {
		c, err := New(f.Sectors)
		if err != nil {
			return nil, payroll.Table{}, err
		}
		cat = c
	}

	table := payroll.DefaultTable()
	if len(f.Pay.Tiers) > 0 {
		table.Tiers = f.Pay.Tiers
	}
	if len(f.Pay.WeekendDays) > 0 {
		table.WeekendDays = f.Pay.WeekendDays
	}
	if len(f.Pay.WeekDays) > 0 {
		table.WeekDays = f.Pay.WeekDays
	}
	if err := table.Validate(); err != nil {
		return nil, payroll.Table{}, fmt.Errorf("pay table: %w", err)
	}
	return cat, table, nil
}
