package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/application/port"
)

// CapabilityGuard allows actors holding a single named capability
type CapabilityGuard struct {
	configured
	authorizer port.Authorizer
	capability string
}

// NewCapabilityGuard creates an unconfigured capability guard
func NewCapabilityGuard(authorizer port.Authorizer) *CapabilityGuard {
	return &CapabilityGuard{authorizer: authorizer}
}

func (g *CapabilityGuard) Name() string { return "CapabilityGuard" }

func (g *CapabilityGuard) Description() string {
	return fmt.Sprintf("actor must hold the capability %s", g.capability)
}

func (g *CapabilityGuard) ValidateConfig(params []string) []error {
	var errs []error
	if len(params) != 1 {
		errs = append(errs, fmt.Errorf("CapabilityGuard takes exactly one capability, got %d", len(params)))
	}
	if g.authorizer == nil {
		errs = append(errs, errors.New("CapabilityGuard requires an authorizer"))
	}
	return errs
}

func (g *CapabilityGuard) Configure(params []string) error {
	if err := g.markConfigured(); err != nil {
		return err
	}
	if len(params) > 0 {
		g.capability = params[0]
	}
	return nil
}

func (g *CapabilityGuard) Check(ctx context.Context, entityID, actorID string, in Input) Result {
	if !g.isConfigured() || g.capability == "" {
		return Deny(ReasonNotConfigured, "CapabilityGuard is not configured", nil)
	}

	data := map[string]interface{}{"required_capability": g.capability}

	ok, err := g.authorizer.ActorHasCapability(ctx, actorID, g.capability)
	if err != nil {
		return Deny(ReasonAuthorizationError, fmt.Sprintf("capability lookup failed: %v", err), data)
	}
	if !ok {
		return Deny(ReasonMissingCapability,
			fmt.Sprintf("actor %s lacks the capability %s", actorID, g.capability),
			data)
	}
	return Allow(fmt.Sprintf("actor holds capability %s", g.capability))
}
