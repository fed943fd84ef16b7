package entitlement

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inaiurai/relay/internal/models"
)

//go:embed personas.yaml
var defaultPersonas []byte

// Persona is a named system-instruction template.
type Persona struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Instruction string `yaml:"instruction" json:"-"`
}

// Catalog holds the known personas in file order.
type Catalog struct {
	order []string
	byKey map[string]Persona
}

// LoadCatalog reads personas from path, or the built-in set when path is "".
// Every persona referenced by the tier table must be present.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultPersonas
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read personas %q: %w", path, err)
		}
		data = b
	}
	return parseCatalog(data)
}

// DefaultCatalog returns the built-in catalog. It panics if the embedded
// file is broken, which only a bad build can cause.
func DefaultCatalog() *Catalog {
	c, err := parseCatalog(defaultPersonas)
	if err != nil {
		panic(err)
	}
	return c
}

func parseCatalog(data []byte) (*Catalog, error) {
	var list []Persona
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	c := &Catalog{byKey: make(map[string]Persona, len(list))}
	for _, p := range list {
		if p.Key == "" || p.Instruction == "" {
			return nil, fmt.Errorf("persona %q: key and instruction are required", p.Name)
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("persona %q defined twice", p.Key)
		}
		c.byKey[p.Key] = p
		c.order = append(c.order, p.Key)
	}
	for _, t := range models.Tiers {
		for _, key := range CapabilitiesFor(t).AllowedPersonas {
			if _, ok := c.byKey[key]; !ok {
				return nil, fmt.Errorf("persona %q used by tier %s is missing", key, t)
			}
		}
	}
	return c, nil
}

// Get returns the persona for key.
func (c *Catalog) Get(key string) (Persona, bool) {
	p, ok := c.byKey[key]
	return p, ok
}

// Keys returns persona keys in catalog order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Name is the display name of key, falling back to the key itself.
func (c *Catalog) Name(key string) string {
	if p, ok := c.byKey[key]; ok {
		return p.Name
	}
	return key
}
