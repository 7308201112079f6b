package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db/models"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
)

// MaxLineQuantity caps a single cart line.
const MaxLineQuantity = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type medicineLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Medicine, error)
}

// Service exposes cart operations for the calling user.
type Service interface {
	View(ctx context.Context, actor auth.Actor) (*View, error)
	AddItem(ctx context.Context, actor auth.Actor, medicineID uuid.UUID, qty int) (*View, error)
	SetQuantity(ctx context.Context, actor auth.Actor, medicineID uuid.UUID, qty int) (*View, error)
	RemoveItem(ctx context.Context, actor auth.Actor, medicineID uuid.UUID) (*View, error)
	Clear(ctx context.Context, actor auth.Actor) error
}

type service struct {
	repo      Repository
	tx        txRunner
	medicines medicineLoader
	pricer    *orders.Pricer
}

// NewService builds a cart service. pricer may be nil, in which case views
// carry no estimate.
func NewService(repo Repository, tx txRunner, medicines medicineLoader, pricer *orders.Pricer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if medicines == nil {
		return nil, fmt.Errorf("medicine loader required")
	}
	return &service{repo: repo, tx: tx, medicines: medicines, pricer: pricer}, nil
}

func (s *service) View(ctx context.Context, actor auth.Actor) (*View, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	return s.view(ctx, actor.UserID)
}

// AddItem merges qty into the line for medicineID. The merged quantity must
// fit the current stock.
func (s *service) AddItem(ctx context.Context, actor auth.Actor, medicineID uuid.UUID, qty int) (*View, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	medicine, err := s.loadSellable(ctx, medicineID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.AddQuantity(ctx, actor.UserID, medicineID, qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
		}
		item, err := repo.FindItem(ctx, actor.UserID, medicineID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}
		return checkQuantity(medicine, item.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, actor.UserID)
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (s *service) SetQuantity(ctx context.Context, actor auth.Actor, medicineID uuid.UUID, qty int) (*View, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be >= 0")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, actor, medicineID)
	}
	medicine, err := s.loadSellable(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	if err := checkQuantity(medicine, qty); err != nil {
		return nil, err
	}

	found, err := s.repo.SetQuantity(ctx, actor.UserID, medicineID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medicine is not in the cart")
	}
	return s.view(ctx, actor.UserID)
}

func (s *service) RemoveItem(ctx context.Context, actor auth.Actor, medicineID uuid.UUID) (*View, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveItem(ctx, actor.UserID, medicineID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.view(ctx, actor.UserID)
}

func (s *service) Clear(ctx context.Context, actor auth.Actor) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	if err := s.repo.Clear(ctx, actor.UserID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) view(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.repo.ListItems(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	view := NewView(items)
	if s.pricer != nil && view.SubtotalCents > 0 {
		q := s.pricer.Quote(view.SubtotalCents, 0)
		view.Estimate = &Estimate{
			SubtotalCents:    q.SubtotalCents,
			TaxCents:         q.TaxCents,
			ShippingFeeCents: q.ShippingFeeCents,
			TotalCents:       q.TotalCents,
		}
	}
	return &view, nil
}

func (s *service) loadSellable(ctx context.Context, medicineID uuid.UUID) (*models.Medicine, error) {
	if medicineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "medicine id is required")
	}
	medicine, err := s.medicines.FindByID(ctx, medicineID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load medicine")
	}
	if !medicine.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
	}
	return medicine, nil
}

func checkQuantity(medicine *models.Medicine, qty int) error {
	if qty > MaxLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d units per medicine", MaxLineQuantity))
	}
	if qty > medicine.StockQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("only %d units of %s in stock", medicine.StockQuantity, medicine.Name)).
			WithDetails(map[string]any{
				"medicine_id": medicine.ID,
				"available":   medicine.StockQuantity,
				"requested":   qty,
			})
	}
	return nil
}

func requireUser(actor auth.Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	return nil
}
