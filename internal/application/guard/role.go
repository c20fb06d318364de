package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/garyjia/workflow-engine/internal/application/port"
)

// configured enforces single configuration
type configured struct {
	done atomic.Bool
}

func (c *configured) markConfigured() error {
	if !c.done.CompareAndSwap(false, true) {
		return ErrAlreadyConfigured
	}
	return nil
}

func (c *configured) isConfigured() bool {
	return c.done.Load()
}

// RoleGuard allows actors holding any of the configured roles
type RoleGuard struct {
	configured
	authorizer port.Authorizer
	roles      []string
}

// NewRoleGuard creates an unconfigured role guard
func NewRoleGuard(authorizer port.Authorizer) *RoleGuard {
	return &RoleGuard{authorizer: authorizer}
}

func (g *RoleGuard) Name() string { return "RoleGuard" }

func (g *RoleGuard) Description() string {
	return fmt.Sprintf("actor must hold one of the roles: %s", strings.Join(g.roles, ", "))
}

func (g *RoleGuard) ValidateConfig(params []string) []error {
	var errs []error
	if len(params) == 0 {
		errs = append(errs, errors.New("RoleGuard requires at least one role"))
	}
	for _, p := range params {
		if strings.ContainsAny(p, " \t") {
			errs = append(errs, fmt.Errorf("role %q contains whitespace", p))
		}
	}
	if g.authorizer == nil {
		errs = append(errs, errors.New("RoleGuard requires an authorizer"))
	}
	return errs
}

func (g *RoleGuard) Configure(params []string) error {
	if err := g.markConfigured(); err != nil {
		return err
	}
	g.roles = append([]string{}, params...)
	return nil
}

func (g *RoleGuard) Check(ctx context.Context, entityID, actorID string, in Input) Result {
	if !g.isConfigured() {
		return Deny(ReasonNotConfigured, "RoleGuard is not configured", nil)
	}

	for _, role := range g.roles {
		ok, err := g.authorizer.ActorHasRole(ctx, actorID, role)
		if err != nil {
			return Deny(ReasonAuthorizationError, fmt.Sprintf("role lookup failed: %v", err), map[string]interface{}{
				"role": role,
			})
		}
		if ok {
			return Allow(fmt.Sprintf("actor holds role %s", role))
		}
	}

	data := map[string]interface{}{
		"required_roles": append([]string{}, g.roles...),
	}
	if lister, ok := g.authorizer.(port.RoleLister); ok {
		if held, err := lister.ActorRoles(ctx, actorID); err == nil {
			data["actor_roles"] = held
		}
	}

	return Deny(ReasonInsufficientRole,
		fmt.Sprintf("actor %s needs one of the roles: %s", actorID, strings.Join(g.roles, ", ")),
		data)
}
