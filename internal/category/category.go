// Package category holds the closed set of notification categories a
// deployment understands. Both the command surface and the webhook router
// resolve names through the same Catalog, so an unknown category is a
// validation error everywhere instead of a silent no-op.
package category

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Category is a validated notification kind (the webhook "type").
type Category string

func (c Category) String() string { return string(c) }

// Spec describes one category: its wire name, the slash command that
// binds a channel to it, and a human label used in replies.
type Spec struct {
	Name        Category
	Command     string
	Label       string
	Description string
}

var (
	namePattern    = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
	commandPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

// Defaults are the categories the game server emits out of the box.
func Defaults() []Spec {
	return []Spec{
		{
			Name:        "joined",
			Command:     "setjoinedchannel",
			Label:       "Joined",
			Description: "Set the channel that receives player joined messages",
		},
		{
			Name:        "nextupdate",
			Command:     "setnextupdatechannel",
			Label:       "Next update",
			Description: "Set the channel that receives next update messages",
		},
	}
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	specs     []Spec
	byName    map[Category]Spec
	byCommand map[string]Spec
}

// NewCatalog validates specs. An empty list yields the defaults.
func NewCatalog(specs []Spec) (*Catalog, error) {
	if len(specs) == 0 {
		specs = Defaults()
	}
	c := &Catalog{
		specs:     make([]Spec, 0, len(specs)),
		byName:    make(map[Category]Spec, len(specs)),
		byCommand: make(map[string]Spec, len(specs)),
	}
	for i, s := range specs {
		s.Name = Category(strings.TrimSpace(string(s.Name)))
		s.Command = strings.TrimSpace(s.Command)
		if !namePattern.MatchString(string(s.Name)) {
			return nil, fmt.Errorf("categories[%d].name: invalid %q", i, s.Name)
		}
		if s.Command == "" {
			s.Command = "set" + strings.NewReplacer("-", "", "_", "").Replace(string(s.Name)) + "channel"
		}
		if !commandPattern.MatchString(s.Command) {
			return nil, fmt.Errorf("categories[%d].command: invalid %q", i, s.Command)
		}
		if s.Command == PingCommand {
			return nil, fmt.Errorf("categories[%d].command: %q is reserved", i, s.Command)
		}
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("categories[%d].name: duplicate %q", i, s.Name)
		}
		if _, dup := c.byCommand[s.Command]; dup {
			return nil, fmt.Errorf("categories[%d].command: duplicate %q", i, s.Command)
		}
		if strings.TrimSpace(s.Label) == "" {
			s.Label = string(s.Name)
		}
		if strings.TrimSpace(s.Description) == "" {
			s.Description = "Set the channel that receives " + s.Label + " messages"
		}
		c.specs = append(c.specs, s)
		c.byName[s.Name] = s
		c.byCommand[s.Command] = s
	}
	return c, nil
}

// MustDefault returns the default catalog.
func MustDefault() *Catalog {
	c, err := NewCatalog(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// PingCommand is the liveness command; it is never a category command.
const PingCommand = "ping"

// Parse resolves a raw name. ok is false for names outside the catalog.
func (c *Catalog) Parse(raw string) (Category, bool) {
	s, ok := c.byName[Category(strings.TrimSpace(raw))]
	return s.Name, ok
}

// Lookup returns the spec for a known category.
func (c *Catalog) Lookup(cat Category) (Spec, bool) {
	s, ok := c.byName[cat]
	return s, ok
}

// ByCommand returns the category bound to a slash command name.
func (c *Catalog) ByCommand(command string) (Spec, bool) {
	s, ok := c.byCommand[command]
	return s, ok
}

// Specs returns the specs in declaration order.
func (c *Catalog) Specs() []Spec {
	return append([]Spec(nil), c.specs...)
}

// Names returns the sorted category names.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, string(s.Name))
	}
	sort.Strings(out)
	return out
}
