package savings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Catalogue plan ids are fixed so clients can reference them across
// deployments.
var (
	VaultPlanID     = uuid.MustParse("6f1c2a4e-0b7d-4c1e-9a51-3f0f5b8a1001")
	GoalsPlanID     = uuid.MustParse("6f1c2a4e-0b7d-4c1e-9a51-3f0f5b8a1002")
	FlexPlanID      = uuid.MustParse("6f1c2a4e-0b7d-4c1e-9a51-3f0f5b8a1003")
	ChallengePlanID = uuid.MustParse("6f1c2a4e-0b7d-4c1e-9a51-3f0f5b8a1004")
)

// DefaultPlans is the plan catalogue installed at startup.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: VaultPlanID, Name: "Vault", Kind: PlanVault, InterestRate: decimal.NewFromInt(12), MinLockDays: 90},
		{ID: GoalsPlanID, Name: "Goals", Kind: PlanGoals, InterestRate: decimal.NewFromInt(8), MinLockDays: 30, Breakable: true},
		{ID: FlexPlanID, Name: "Flex", Kind: PlanFlex, InterestRate: decimal.NewFromInt(4), Breakable: true},
		{ID: ChallengePlanID, Name: "Challenge", Kind: PlanChallenge, InterestRate: decimal.Zero, Breakable: true},
	}
}

// SeedPlans installs plans that do not exist yet.
func SeedPlans(ctx context.Context, repo Repository, plans []Plan) error {
	for _, p := range plans {
		if err := repo.CreatePlan(ctx, p); err != nil {
			return fmt.Errorf("seed plan %s: %w", p.Name, err)
		}
	}
	return nil
}
