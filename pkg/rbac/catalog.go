package rbac

import (
	"fmt"
	"io"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

var nameSegment = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Catalog is the read-only registry of every grantable permission
type Catalog struct {
	byName map[string]Permission
	sorted []Permission
}

// NewCatalog builds a catalog from permissions, rejecting duplicates and
// malformed names.
func NewCatalog(perms []Permission) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		if !nameSegment.MatchString(p.Resource) || !nameSegment.MatchString(p.Action) {
			return nil, fmt.Errorf("invalid permission %q: resource and action must be lower_snake_case", PermissionName(p.Resource, p.Action))
		}
		if p.Name == "" {
			p.Name = PermissionName(p.Resource, p.Action)
		}
		if p.Name != PermissionName(p.Resource, p.Action) {
			return nil, fmt.Errorf("permission name %q does not match %s:%s", p.Name, p.Resource, p.Action)
		}
		if _, exists := c.byName[p.Name]; exists {
			return nil, fmt.Errorf("duplicate permission %q", p.Name)
		}
		c.byName[p.Name] = p
		c.sorted = append(c.sorted, p)
	}
	sort.Slice(c.sorted, func(i, j int) bool { return c.sorted[i].Name < c.sorted[j].Name })
	return c, nil
}

// List returns every permission sorted by name
func (c *Catalog) List() []Permission {
	out := make([]Permission, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// Exists reports whether name is in the catalog
func (c *Catalog) Exists(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Get looks up a permission by name
func (c *Catalog) Get(name string) (Permission, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// GroupByResource buckets permissions by resource, each bucket sorted by name
func (c *Catalog) GroupByResource() map[string][]Permission {
	groups := make(map[string][]Permission)
	for _, p := range c.sorted {
		groups[p.Resource] = append(groups[p.Resource], p)
	}
	return groups
}

// Validate returns InvalidPermission naming the first unknown entry
func (c *Catalog) Validate(names []string) error {
	for _, name := range names {
		if !c.Exists(name) {
			return apperrors.New(apperrors.KindInvalidPermission, "rbac.Catalog.Validate", "unknown permission %q", name)
		}
	}
	return nil
}

type catalogFile struct {
	Resources map[string]struct {
		Actions map[string]string `yaml:"actions"`
	} `yaml:"resources"`
}

// LoadCatalog reads a YAML catalog of the form
//
//	resources:
//	  properties:
//	    actions:
//	      read: View properties
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(file.Resources) == 0 {
		return nil, fmt.Errorf("catalog defines no resources")
	}

	var perms []Permission
	for resource, def := range file.Resources {
		if len(def.Actions) == 0 {
			return nil, fmt.Errorf("resource %q defines no actions", resource)
		}
		for action, desc := range def.Actions {
			perms = append(perms, Permission{Resource: resource, Action: action, Description: desc})
		}
	}
	return NewCatalog(perms)
}

var defaultResources = []struct {
	resource string
	label    string
	actions  []string
}{
	{"properties", "properties", []string{"create", "read", "update", "delete"}},
	{"units", "units", []string{"create", "read", "update", "delete"}},
	{"leases", "leases", []string{"create", "read", "update", "delete", "renew"}},
	{"tenants", "tenants", []string{"create", "read", "update", "delete"}},
	{"maintenance", "maintenance requests", []string{"create", "read", "update", "delete", "assign"}},
	{"documents", "documents", []string{"create", "read", "update", "delete"}},
	{"notifications", "notifications", []string{"read", "send"}},
	{"reports", "reports", []string{"read", "export"}},
	{"users", "users", []string{"create", "read", "update", "delete"}},
	{"roles", "roles", []string{"create", "read", "update", "delete"}},
	{"invitations", "invitations", []string{"send", "read", "resend", "cancel"}},
	{"audit_logs", "audit logs", []string{"read", "export"}},
	{"settings", "settings", []string{"read", "update"}},
}

var actionVerbs = map[string]string{
	"create": "Create",
	"read":   "View",
	"update": "Edit",
	"delete": "Delete",
	"renew":  "Renew",
	"assign": "Assign",
	"send":   "Send",
	"resend": "Resend",
	"cancel": "Cancel",
	"export": "Export",
}

// DefaultCatalog returns the built-in property-management catalog
func DefaultCatalog() *Catalog {
	var perms []Permission
	for _, r := range defaultResources {
		for _, action := range r.actions {
			perms = append(perms, Permission{
				Resource:    r.resource,
				Action:      action,
				Description: actionVerbs[action] + " " + r.label,
			})
		}
	}
	c, err := NewCatalog(perms)
	if err != nil {
		panic(fmt.Sprintf("default catalog is invalid: %v", err))
	}
	return c
}
