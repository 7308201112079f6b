package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db/models"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/types"
)

// MaxAddresses bounds a single address book.
const MaxAddresses = 20

func (s *service) ListAddresses(ctx context.Context, actor auth.Actor) ([]AddressView, error) {
	rows, err := s.addresses.ListForUser(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	out := make([]AddressView, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewAddressView(row))
	}
	return out, nil
}

// AddAddress appends to the book. The first address, or one flagged as
// default, becomes the single default.
func (s *service) AddAddress(ctx context.Context, actor auth.Actor, input AddressInput) (*AddressView, error) {
	addr, err := input.normalize()
	if err != nil {
		return nil, err
	}

	row := models.UserAddress{
		ID:         uuid.New(),
		UserID:     actor.UserID,
		Label:      input.label(),
		FullName:   addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Lat:        addr.Lat,
		Lng:        addr.Lng,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.addresses.WithTx(tx)
		count, err := repo.CountForUser(ctx, actor.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address book")
		}
		if count >= MaxAddresses {
			return pkgerrors.New(pkgerrors.CodeValidation, "address book is full")
		}
		position, err := repo.NextPosition(ctx, actor.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address book")
		}
		row.Position = position

		makeDefault := input.IsDefault
		if _, err := repo.DefaultForUser(ctx, actor.UserID); errors.Is(err, gorm.ErrRecordNotFound) {
			makeDefault = true
		} else if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default address")
		}
		if makeDefault {
			if err := repo.ClearDefault(ctx, actor.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}
		row.IsDefault = makeDefault
		if err := repo.Create(ctx, &row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := NewAddressView(row)
	return &view, nil
}

// UpdateAddress replaces the address fields. IsDefault=true also promotes it.
func (s *service) UpdateAddress(ctx context.Context, actor auth.Actor, addressID uuid.UUID, input AddressInput) (*AddressView, error) {
	addr, err := input.normalize()
	if err != nil {
		return nil, err
	}
	updates := map[string]any{
		"label":       input.label(),
		"full_name":   addr.FullName,
		"phone":       addr.Phone,
		"line1":       addr.Line1,
		"line2":       addr.Line2,
		"city":        addr.City,
		"state":       addr.State,
		"postal_code": addr.PostalCode,
		"country":     addr.Country,
		"lat":         addr.Lat,
		"lng":         addr.Lng,
		"updated_at":  time.Now().UTC(),
	}

	var updated *models.UserAddress
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.addresses.WithTx(tx)
		if input.IsDefault {
			if err := repo.ClearDefault(ctx, actor.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
			updates["is_default"] = true
		}
		if err := repo.Update(ctx, actor.UserID, addressID, updates); err != nil {
			return addressNotFoundOr(err)
		}
		row, err := repo.FindForUser(ctx, actor.UserID, addressID)
		if err != nil {
			return addressNotFoundOr(err)
		}
		updated = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := NewAddressView(*updated)
	return &view, nil
}

func (s *service) SetDefaultAddress(ctx context.Context, actor auth.Actor, addressID uuid.UUID) (*AddressView, error) {
	var updated *models.UserAddress
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.addresses.WithTx(tx)
		if _, err := repo.FindForUser(ctx, actor.UserID, addressID); err != nil {
			return addressNotFoundOr(err)
		}
		if err := repo.ClearDefault(ctx, actor.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
		}
		if err := repo.Update(ctx, actor.UserID, addressID, map[string]any{"is_default": true, "updated_at": time.Now().UTC()}); err != nil {
			return addressNotFoundOr(err)
		}
		row, err := repo.FindForUser(ctx, actor.UserID, addressID)
		if err != nil {
			return addressNotFoundOr(err)
		}
		updated = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	view := NewAddressView(*updated)
	return &view, nil
}

// DeleteAddress removes an address; deleting the default promotes the next
// address in book order.
func (s *service) DeleteAddress(ctx context.Context, actor auth.Actor, addressID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.addresses.WithTx(tx)
		row, err := repo.FindForUser(ctx, actor.UserID, addressID)
		if err != nil {
			return addressNotFoundOr(err)
		}
		if err := repo.Delete(ctx, actor.UserID, addressID); err != nil {
			return addressNotFoundOr(err)
		}
		if !row.IsDefault {
			return nil
		}
		remaining, err := repo.ListForUser(ctx, actor.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
		}
		if len(remaining) == 0 {
			return nil
		}
		if err := repo.Update(ctx, actor.UserID, remaining[0].ID, map[string]any{"is_default": true}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote default address")
		}
		return nil
	})
}

func (in AddressInput) label() string {
	label := strings.ToLower(strings.TrimSpace(in.Label))
	if label == "" {
		return "home"
	}
	return label
}

func (in AddressInput) normalize() (types.Address, error) {
	addr := types.Address{
		FullName:   strings.TrimSpace(in.FullName),
		Phone:      strings.TrimSpace(in.Phone),
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      in.Line2,
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(in.Country)),
		Lat:        in.Lat,
		Lng:        in.Lng,
	}
	if addr.Line2 != nil {
		if v := strings.TrimSpace(*addr.Line2); v != "" {
			addr.Line2 = &v
		} else {
			addr.Line2 = nil
		}
	}
	if addr.Country == "" {
		addr.Country = "IN"
	}
	if missing := addr.MissingFields(); len(missing) > 0 {
		return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if (addr.Lat == nil) != (addr.Lng == nil) {
		return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	if point, ok := types.PointFrom(addr.Lat, addr.Lng); ok {
		if err := point.Validate(); err != nil {
			return types.Address{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates")
		}
	}
	return addr, nil
}

func addressNotFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "address store")
}
