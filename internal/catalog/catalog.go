// Package catalog holds the static lookup-service and shop-item definitions.
// They are read once at startup and never written back to the data file.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemCreditPack    ItemType = "ZC Pack"
	ItemMembership    ItemType = "Membership"
	ItemExclusionSlot ItemType = "Exclusion Slot"
)

// Service is one external lookup tool.
type Service struct {
	Key         string  `koanf:"key"`
	Name        string  `koanf:"name"`
	DisplayName string  `koanf:"display_name"`
	Cost        float64 `koanf:"cost"`
	APIURL      string  `koanf:"api_url"`
	Method      string  `koanf:"method"`
	InputField  string  `koanf:"input_field"`
	Alias       string  `koanf:"alias"`
	InputPrompt string  `koanf:"input_prompt"`
	Enabled     bool    `koanf:"enabled"`
}

func (s Service) Price() decimal.Decimal {
	return decimal.NewFromFloat(s.Cost).Round(2)
}

func (s Service) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

type ShopItem struct {
	ID               int      `koanf:"item_id"`
	Type             ItemType `koanf:"type"`
	Name             string   `koanf:"name"`
	Description      string   `koanf:"description"`
	PriceINR         float64  `koanf:"price_inr"`
	GrantsZC         int      `koanf:"grants_zc"`
	GrantsRoleID     int64    `koanf:"grants_role_id"`
	RoleDurationDays int      `koanf:"role_duration_days"`
}

type Catalog struct {
	services map[string]Service
	items    map[int]ShopItem
}

// New builds a catalog from explicit lists.
func New(services []Service, items []ShopItem) *Catalog {
	c := &Catalog{
		services: make(map[string]Service, len(services)),
		items:    make(map[int]ShopItem, len(items)),
	}
	for _, s := range services {
		c.services[s.Key] = s
	}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// Load returns the built-in catalog, replacing either list with the one found
// in the YAML file at path when it is set.
func Load(path string) (*Catalog, error) {
	services := DefaultServices()
	items := DefaultShopItems()
	if path == "" {
		return New(services, items), nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog file: %w", err)
	}
	if k.Exists("services") {
		var loaded []Service
		if err := k.Unmarshal("services", &loaded); err != nil {
			return nil, fmt.Errorf("unmarshal services: %w", err)
		}
		services = loaded
	}
	if k.Exists("shop_items") {
		var loaded []ShopItem
		if err := k.Unmarshal("shop_items", &loaded); err != nil {
			return nil, fmt.Errorf("unmarshal shop items: %w", err)
		}
		items = loaded
	}

	for _, s := range services {
		if strings.TrimSpace(s.Key) == "" {
			return nil, fmt.Errorf("service without key in %s", path)
		}
		if s.Cost < 0 {
			return nil, fmt.Errorf("service %s has negative cost", s.Key)
		}
	}
	return New(services, items), nil
}

// Service resolves a key or command alias.
func (c *Catalog) Service(key string) (Service, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if s, ok := c.services[key]; ok {
		return s, true
	}
	for _, s := range c.services {
		if s.Alias != "" && strings.EqualFold(s.Alias, key) {
			return s, true
		}
	}
	return Service{}, false
}

// Cost returns the price of an enabled service.
func (c *Catalog) Cost(key string) (decimal.Decimal, bool) {
	s, ok := c.Service(key)
	if !ok || !s.Enabled {
		return decimal.Zero, false
	}
	return s.Price(), true
}

// Services returns enabled services ordered by key.
func (c *Catalog) Services() []Service {
	out := make([]Service, 0, len(c.services))
	for _, s := range c.services {
		if s.Enabled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *Catalog) Item(id int) (ShopItem, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Items returns shop items ordered by id.
func (c *Catalog) Items() []ShopItem {
	out := make([]ShopItem, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
