package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db"
	"github.com/medicart/medicart-api/pkg/db/dbtest"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
)

// The address repository backs checkout address resolution directly.
var _ orders.AddressBook = (*AddressRepository)(nil)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Users:     NewRepository(conn),
		Addresses: NewAddressRepository(conn),
		Wishlist:  NewWishlistRepository(conn),
		Medicines: medicines.NewRepository(conn),
		Tx:        db.NewFromGorm(conn),
	})
	require.NoError(t, err)
	return svc, conn
}

func customerActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
}

func homeInput(line1 string) AddressInput {
	return AddressInput{
		FullName:   "Asha Rao",
		Phone:      "+91 98765 43210",
		Line1:      line1,
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
	}
}

func TestSyncCreatesAndRefreshesUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, svc.Sync(ctx, auth.AccessTokenPayload{UserID: id, Role: enums.UserRoleCustomer, Email: "Asha@Example.com"}))
	profile, err := svc.Profile(ctx, auth.Actor{UserID: id})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", profile.Email)
	assert.Equal(t, "asha", profile.Name)
	assert.Equal(t, enums.UserRoleCustomer, profile.Role)

	name := "Asha Rao"
	_, err = svc.UpdateProfile(ctx, auth.Actor{UserID: id}, ProfileInput{Name: &name})
	require.NoError(t, err)

	require.NoError(t, svc.Sync(ctx, auth.AccessTokenPayload{UserID: id, Role: enums.UserRolePharmacist, Email: "asha@example.com"}))
	profile, err = svc.Profile(ctx, auth.Actor{UserID: id})
	require.NoError(t, err)
	assert.Equal(t, enums.UserRolePharmacist, profile.Role)
	assert.Equal(t, "Asha Rao", profile.Name, "sync must not clobber the edited name")
}

func TestSyncRejectsTakenEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Sync(ctx, auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer, Email: "dup@example.com"}))
	err := svc.Sync(ctx, auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer, Email: "dup@example.com"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	err = svc.Sync(ctx, auth.AccessTokenPayload{UserID: uuid.New(), Role: "courier"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestAddressBookKeepsSingleDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	actor := customerActor()

	first, err := svc.AddAddress(ctx, actor, homeInput("1 MG Road"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first address becomes default")
	assert.Equal(t, "IN", first.Country)

	second, err := svc.AddAddress(ctx, actor, homeInput("2 Brigade Road"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
	assert.Equal(t, first.Position+1, second.Position)

	input := homeInput("3 Church Street")
	input.IsDefault = true
	third, err := svc.AddAddress(ctx, actor, input)
	require.NoError(t, err)
	assert.True(t, third.IsDefault)

	_, err = svc.SetDefaultAddress(ctx, actor, second.ID)
	require.NoError(t, err)

	book, err := svc.ListAddresses(ctx, actor)
	require.NoError(t, err)
	require.Len(t, book, 3)
	defaults := 0
	for _, a := range book {
		if a.IsDefault {
			defaults++
			assert.Equal(t, second.ID, a.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestDeleteDefaultPromotesNext(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	actor := customerActor()

	first, err := svc.AddAddress(ctx, actor, homeInput("1 MG Road"))
	require.NoError(t, err)
	second, err := svc.AddAddress(ctx, actor, homeInput("2 Brigade Road"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAddress(ctx, actor, first.ID))

	book := NewAddressRepository(conn)
	def, err := book.DefaultForUser(ctx, actor.UserID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	err = svc.DeleteAddress(ctx, customerActor(), second.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "other users cannot touch the book")
}

func TestAddressValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	actor := customerActor()

	_, err := svc.AddAddress(ctx, actor, AddressInput{FullName: "x"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	lat := 12.97
	input := homeInput("1 MG Road")
	input.Lat = &lat
	_, err = svc.AddAddress(ctx, actor, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad, lng := 123.0, 77.59
	input.Lat, input.Lng = &bad, &lng
	_, err = svc.AddAddress(ctx, actor, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateAddress(ctx, actor, uuid.New(), homeInput("9 Nowhere"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestWishlist(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	actor := customerActor()

	med := models.Medicine{ID: uuid.New(), Name: "Cetirizine", Category: "Allergy", PriceCents: 900, StockQuantity: 3, IsActive: true}
	require.NoError(t, conn.Create(&med).Error)

	require.NoError(t, svc.AddToWishlist(ctx, actor, med.ID))
	require.NoError(t, svc.AddToWishlist(ctx, actor, med.ID))

	items, err := svc.ListWishlist(ctx, actor, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Cetirizine", items[0].Name)

	err = svc.AddToWishlist(ctx, actor, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, svc.RemoveFromWishlist(ctx, actor, med.ID))
	items, err = svc.ListWishlist(ctx, actor, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}
