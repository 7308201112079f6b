package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db"
	"github.com/medicart/medicart-api/pkg/db/models"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
)

const (
	emailConstraintPG     = "users_email_key"
	emailConstraintSQLite = "users.email"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type medicineLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Medicine, error)
}

// Service owns the profile, address book and wishlist of a user.
type Service interface {
	Sync(ctx context.Context, identity auth.AccessTokenPayload) error
	Profile(ctx context.Context, actor auth.Actor) (*ProfileView, error)
	UpdateProfile(ctx context.Context, actor auth.Actor, input ProfileInput) (*ProfileView, error)

	ListAddresses(ctx context.Context, actor auth.Actor) ([]AddressView, error)
	AddAddress(ctx context.Context, actor auth.Actor, input AddressInput) (*AddressView, error)
	UpdateAddress(ctx context.Context, actor auth.Actor, addressID uuid.UUID, input AddressInput) (*AddressView, error)
	SetDefaultAddress(ctx context.Context, actor auth.Actor, addressID uuid.UUID) (*AddressView, error)
	DeleteAddress(ctx context.Context, actor auth.Actor, addressID uuid.UUID) error

	ListWishlist(ctx context.Context, actor auth.Actor, limit int) ([]medicines.MedicineView, error)
	AddToWishlist(ctx context.Context, actor auth.Actor, medicineID uuid.UUID) error
	RemoveFromWishlist(ctx context.Context, actor auth.Actor, medicineID uuid.UUID) error
}

// ServiceParams groups dependencies for the users service.
type ServiceParams struct {
	Users     *Repository
	Addresses *AddressRepository
	Wishlist  *WishlistRepository
	Medicines medicineLoader
	Tx        txRunner
	Logger    *logger.Logger
}

type service struct {
	users     *Repository
	addresses *AddressRepository
	wishlist  *WishlistRepository
	medicines medicineLoader
	tx        txRunner
	logg      *logger.Logger

	// synced remembers identities already written this process.
	synced sync.Map
}

func NewService(p ServiceParams) (Service, error) {
	if p.Users == nil || p.Addresses == nil || p.Wishlist == nil {
		return nil, fmt.Errorf("user repositories required")
	}
	if p.Medicines == nil {
		return nil, fmt.Errorf("medicine loader required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &service{
		users:     p.Users,
		addresses: p.Addresses,
		wishlist:  p.Wishlist,
		medicines: p.Medicines,
		tx:        p.Tx,
		logg:      p.Logger,
	}, nil
}

// Sync makes sure the authenticated identity has a users row. Email and role
// follow the token; name and phone stay user-editable.
func (s *service) Sync(ctx context.Context, identity auth.AccessTokenPayload) error {
	if identity.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !identity.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown role")
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	key := identity.UserID.String() + "|" + string(identity.Role) + "|" + email
	if _, ok := s.synced.Load(key); ok {
		return nil
	}

	refresh := []string{"role", "updated_at"}
	user := &models.User{
		ID:   identity.UserID,
		Role: identity.Role,
	}
	if email != "" {
		user.Email = email
		user.Name = strings.SplitN(email, "@", 2)[0]
		refresh = append(refresh, "email")
	} else {
		user.Email = identity.UserID.String() + "@users.invalid"
		user.Name = "Customer"
	}

	if err := s.users.Upsert(ctx, user, refresh); err != nil {
		if db.IsUniqueViolation(err, emailConstraintPG) || db.IsUniqueViolation(err, emailConstraintSQLite) {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already linked to another user")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync user")
	}
	s.synced.Store(key, struct{}{})
	return nil
}

func (s *service) Profile(ctx context.Context, actor auth.Actor) (*ProfileView, error) {
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	view := NewProfileView(*user)
	return &view, nil
}

func (s *service) UpdateProfile(ctx context.Context, actor auth.Actor, input ProfileInput) (*ProfileView, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
		}
		updates["name"] = name
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		if phone == "" {
			updates["phone"] = nil
		} else {
			updates["phone"] = phone
		}
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := s.users.Update(ctx, actor.UserID, updates); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
	}
	return s.Profile(ctx, actor)
}
