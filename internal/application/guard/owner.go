package guard

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
)

// OwnerGuard allows the actor whose ID equals a field of the entity data.
// Missing data and missing fields are reported separately from a denial
// because they point at a caller that forgot to pass entity data.
type OwnerGuard struct {
	configured
	field string
}

// NewOwnerGuard creates an unconfigured owner guard
func NewOwnerGuard() *OwnerGuard {
	return &OwnerGuard{}
}

func (g *OwnerGuard) Name() string { return "OwnerGuard" }

func (g *OwnerGuard) Description() string {
	return fmt.Sprintf("actor must own the entity (field %s)", g.field)
}

func (g *OwnerGuard) ValidateConfig(params []string) []error {
	if len(params) != 1 {
		return []error{fmt.Errorf("OwnerGuard takes exactly one owner field, got %d", len(params))}
	}
	return nil
}

func (g *OwnerGuard) Configure(params []string) error {
	if err := g.markConfigured(); err != nil {
		return err
	}
	if len(params) > 0 {
		g.field = params[0]
	}
	return nil
}

func (g *OwnerGuard) Check(ctx context.Context, entityID, actorID string, in Input) Result {
	if !g.isConfigured() || g.field == "" {
		return Deny(ReasonNotConfigured, "OwnerGuard is not configured", nil)
	}

	data := map[string]interface{}{"owner_field": g.field}

	if in.EntityData == nil {
		return Deny(ReasonMissingEntityData, "entity data is required to check ownership", data)
	}

	raw, ok := in.EntityData[g.field]
	if !ok {
		return Deny(ReasonOwnerFieldNotFound, fmt.Sprintf("entity data has no field %s", g.field), data)
	}

	owner, err := cast.ToStringE(raw)
	if err != nil || owner == "" {
		return Deny(ReasonOwnerFieldNotFound, fmt.Sprintf("entity field %s does not hold an actor id", g.field), data)
	}

	data["owner_id"] = owner
	if owner != actorID {
		return Deny(ReasonNotOwner, fmt.Sprintf("actor %s is not the owner of %s", actorID, entityID), data)
	}
	return Allow("actor owns the entity")
}
