// Package authz answers role and capability questions from a static
// actor/role directory loaded from configuration.
package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/garyjia/workflow-engine/internal/application/port"
)

// MaxInheritanceDepth bounds role inheritance chains
const MaxInheritanceDepth = 10

var (
	// ErrUnknownRole is returned when an actor or role references an undefined role
	ErrUnknownRole = errors.New("unknown role")

	// ErrInheritanceCycle is returned when roles inherit from each other in a loop
	ErrInheritanceCycle = errors.New("role inheritance cycle")

	// ErrInheritanceTooDeep is returned when an inheritance chain exceeds MaxInheritanceDepth
	ErrInheritanceTooDeep = errors.New("role inheritance too deep")
)

// Role grants capabilities and may inherit other roles' capabilities.
// A capability "orders.*" matches every capability under "orders.";
// "*" matches everything.
type Role struct {
	Capabilities []string `mapstructure:"capabilities"`
	Inherits     []string `mapstructure:"inherits"`
}

// Config is the static directory
type Config struct {
	Roles  map[string]Role     `mapstructure:"roles"`
	Actors map[string][]string `mapstructure:"actors"`
}

// Directory implements port.Authorizer and port.RoleLister
type Directory struct {
	mu sync.RWMutex
	// actor -> roles, including inherited ones
	actorRoles map[string]map[string]bool
	// actor -> assigned roles as configured
	assigned map[string][]string
	// role -> effective capabilities
	capabilities map[string][]string
}

// NewDirectory validates cfg and builds a directory
func NewDirectory(cfg Config) (*Directory, error) {
	d := &Directory{}
	if err := d.Replace(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Replace swaps the directory contents atomically. On error the old contents stay.
func (d *Directory) Replace(cfg Config) error {
	capabilities := make(map[string][]string, len(cfg.Roles))
	expanded := make(map[string][]string, len(cfg.Roles))
	for name := range cfg.Roles {
		roles, err := expand(name, cfg.Roles, nil, 0)
		if err != nil {
			return err
		}
		expanded[name] = roles

		var caps []string
		for _, r := range roles {
			caps = append(caps, cfg.Roles[r].Capabilities...)
		}
		capabilities[name] = caps
	}

	actorRoles := make(map[string]map[string]bool, len(cfg.Actors))
	assigned := make(map[string][]string, len(cfg.Actors))
	for actor, roles := range cfg.Actors {
		set := make(map[string]bool)
		for _, role := range roles {
			inherited, ok := expanded[role]
			if !ok {
				return fmt.Errorf("%w: %s (actor %s)", ErrUnknownRole, role, actor)
			}
			for _, r := range inherited {
				set[r] = true
			}
		}
		actorRoles[actor] = set
		assigned[actor] = append([]string(nil), roles...)
	}

	d.mu.Lock()
	d.actorRoles = actorRoles
	d.assigned = assigned
	d.capabilities = capabilities
	d.mu.Unlock()
	return nil
}

// expand returns role and every role it inherits, depth-first
func expand(role string, roles map[string]Role, path []string, depth int) ([]string, error) {
	if depth > MaxInheritanceDepth {
		return nil, fmt.Errorf("%w: %s", ErrInheritanceTooDeep, strings.Join(append(path, role), " -> "))
	}
	for _, p := range path {
		if p == role {
			return nil, fmt.Errorf("%w: %s", ErrInheritanceCycle, strings.Join(append(path, role), " -> "))
		}
	}
	def, ok := roles[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	out := []string{role}
	for _, parent := range def.Inherits {
		inherited, err := expand(parent, roles, append(path, role), depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, inherited...)
	}
	return out, nil
}

// ActorHasRole reports whether the actor holds role directly or through inheritance
func (d *Directory) ActorHasRole(ctx context.Context, actorID, role string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.actorRoles[actorID][role], nil
}

// ActorHasCapability reports whether any of the actor's roles grants capability
func (d *Directory) ActorHasCapability(ctx context.Context, actorID, capability string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for role := range d.actorRoles[actorID] {
		for _, granted := range d.capabilities[role] {
			if matchCapability(granted, capability) {
				return true, nil
			}
		}
	}
	return false, nil
}

// ActorRoles returns the actor's assigned roles, sorted
func (d *Directory) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	roles := append([]string(nil), d.assigned[actorID]...)
	sort.Strings(roles)
	return roles, nil
}

func matchCapability(granted, wanted string) bool {
	switch {
	case granted == "*":
		return true
	case granted == wanted:
		return true
	case strings.HasSuffix(granted, ".*"):
		return strings.HasPrefix(wanted, strings.TrimSuffix(granted, "*"))
	}
	return false
}

var (
	_ port.Authorizer = (*Directory)(nil)
	_ port.RoleLister = (*Directory)(nil)
)
