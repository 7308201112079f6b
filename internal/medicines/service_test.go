package medicines

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db/dbtest"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/storage"
	"github.com/medicart/medicart-api/pkg/types"
)

var (
	admin    = auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	customer = auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
)

type fakeImages struct {
	uploads   []storage.Upload
	destroyed []string
}

func (f *fakeImages) Upload(_ context.Context, in storage.Upload) (types.StoredImage, error) {
	f.uploads = append(f.uploads, in)
	id := in.Folder + "/" + uuid.NewString() + in.Extension
	return types.StoredImage{URL: "https://cdn.test/" + id, StorageID: id}, nil
}

func (f *fakeImages) Destroy(_ context.Context, storageID string) error {
	f.destroyed = append(f.destroyed, storageID)
	return nil
}

func newTestService(t *testing.T) (Service, *gorm.DB, *fakeImages) {
	t.Helper()
	conn := dbtest.Open(t)
	images := &fakeImages{}
	svc, err := NewService(NewRepository(conn), images, nil)
	require.NoError(t, err)
	return svc, conn, images
}

func createMedicine(t *testing.T, svc Service, name, category string, stock int, rx bool) *models.Medicine {
	t.Helper()
	m, err := svc.Create(context.Background(), admin, UpsertInput{
		Name:                 name,
		Category:             category,
		PriceCents:           1500,
		StockQuantity:        stock,
		RequiresPrescription: rx,
	})
	require.NoError(t, err)
	return m
}

func TestCreateRequiresStaffAndValidInput(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), customer, UpsertInput{Name: "x", Category: "y"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Create(context.Background(), admin, UpsertInput{Name: " ", Category: "y"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(context.Background(), admin, UpsertInput{Name: "x", Category: "y", PriceCents: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	createMedicine(t, svc, "Paracetamol 500", "Pain Relief", 10, false)
	createMedicine(t, svc, "Ibuprofen", "Pain Relief", 0, false)
	amox := createMedicine(t, svc, "Amoxicillin", "Antibiotics", 4, true)
	hidden := createMedicine(t, svc, "Old Syrup", "Cough", 3, false)
	require.NoError(t, svc.Deactivate(ctx, admin, hidden.ID))

	page, err := svc.List(ctx, customer, ListFilters{Category: "pain relief"}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	inStock := true
	page, err = svc.List(ctx, customer, ListFilters{Category: "Pain Relief", InStock: &inStock}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].InStock)

	page, err = svc.List(ctx, customer, ListFilters{Search: "AMOX"}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, amox.ID, page.Items[0].ID)

	page, err = svc.List(ctx, customer, ListFilters{Search: "100%"}, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = svc.List(ctx, customer, ListFilters{IncludeInactive: true}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3, "customers never see inactive medicines")

	page, err = svc.List(ctx, admin, ListFilters{IncludeInactive: true}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)

	_, err = svc.Get(ctx, customer, hidden.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Antibiotics", "Pain Relief"}, categories)
}

func TestUpdatePatchesFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	m := createMedicine(t, svc, "Cetirizine", "Allergy", 5, false)

	price, stock := 2500, 0
	updated, err := svc.Update(ctx, admin, m.ID, PatchInput{PriceCents: &price, StockQuantity: &stock})
	require.NoError(t, err)
	assert.Equal(t, 2500, updated.PriceCents)
	assert.False(t, updated.InStock())
	assert.Equal(t, "Cetirizine", updated.Name)

	_, err = svc.Update(ctx, admin, uuid.New(), PatchInput{PriceCents: &price})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUploadImageReplacesPrevious(t *testing.T) {
	svc, _, images := newTestService(t)
	ctx := context.Background()
	m := createMedicine(t, svc, "Cetirizine", "Allergy", 5, false)

	first, err := svc.UploadImage(ctx, admin, m.ID, bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.NotNil(t, first.ImageURL)
	require.Len(t, images.uploads, 1)
	assert.Equal(t, "image/png", images.uploads[0].ContentType)

	second, err := svc.UploadImage(ctx, admin, m.ID, bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.NotEqual(t, *first.ImageStorageID, *second.ImageStorageID)
	assert.Equal(t, []string{*first.ImageStorageID}, images.destroyed)

	_, err = svc.UploadImage(ctx, admin, m.ID, strings.NewReader("plain text is not an image"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestInventoryReserveAndRelease(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	m := createMedicine(t, svc, "Cetirizine", "Allergy", 5, false)
	inv := NewInventory()

	require.NoError(t, inv.Reserve(ctx, conn, m.ID, 3))
	err := inv.Reserve(ctx, conn, m.ID, 3)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, inv.Release(ctx, conn, m.ID, 1))
	stored, err := svc.Get(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.StockQuantity)

	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := inv.Reserve(ctx, tx, m.ID, 3); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	stored, err = svc.Get(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.StockQuantity, "rolled back reservation restores stock")
}
