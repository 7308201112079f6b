package delivery

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
)

// Coordinator lets the order workflow move the bound agent inside its own
// transaction.
type Coordinator struct {
	repo Repository
	logg *logger.Logger
}

func NewCoordinator(repo Repository, logg *logger.Logger) *Coordinator {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Coordinator{repo: repo, logg: logg}
}

func (c *Coordinator) MarkBusy(ctx context.Context, tx *gorm.DB, agentID, orderID uuid.UUID) error {
	ok, err := c.repo.WithTx(tx).MarkBusy(ctx, agentID, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark agent busy")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodePreconditionFailed, "delivery agent is not bound to this order").
			WithDetails(map[string]any{"agent_id": agentID, "order_id": orderID})
	}
	return nil
}

// Release frees the agent. An agent that was already detached from the order
// is left alone.
func (c *Coordinator) Release(ctx context.Context, tx *gorm.DB, agentID, orderID uuid.UUID, delivered bool) error {
	ok, err := c.repo.WithTx(tx).Release(ctx, agentID, orderID, delivered)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release agent")
	}
	if !ok {
		logCtx := c.logg.WithAgentID(c.logg.WithOrderID(ctx, orderID.String()), agentID.String())
		c.logg.Warn(logCtx, "agent already detached from order")
	}
	return nil
}
