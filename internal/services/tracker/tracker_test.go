package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"case-tracker/internal/database"
	"case-tracker/internal/models"
	"case-tracker/internal/services/steam"
	"case-tracker/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	steamID   string
	user      *models.User
	inventory *steam.Inventory
	prices    map[string]float64

	inventoryCalls int
	priceCalls     int
}

func (f *fakeGateway) ResolveVanityURL(_ context.Context, name string) (string, error) {
	if name == "nobody" {
		return "", steam.ErrNotFound
	}
	return f.steamID, nil
}

func (f *fakeGateway) GetPlayerSummary(_ context.Context, steamID string) (*models.User, error) {
	if f.user == nil {
		return nil, steam.ErrNotFound
	}
	return &models.User{ID: steamID, Nick: f.user.Nick, AvatarHash: f.user.AvatarHash}, nil
}

func (f *fakeGateway) GetInventory(context.Context, string) (*steam.Inventory, error) {
	f.inventoryCalls++
	return f.inventory, nil
}

func (f *fakeGateway) GetMarketPrice(_ context.Context, name string) (float64, error) {
	f.priceCalls++
	price, ok := f.prices[name]
	if !ok {
		return 0, fmt.Errorf("no listing for %q", name)
	}
	return price, nil
}

type fakeRates struct {
	rates map[string]float64
	err   error
}

func (f *fakeRates) GetRates(context.Context, []string) (map[string]float64, error) {
	return f.rates, f.err
}

func caseInventory() *steam.Inventory {
	return &steam.Inventory{
		Assets: []steam.Asset{
			{AssetID: "x1", ClassID: "a"},
			{AssetID: "x2", ClassID: "a"},
			{AssetID: "x3", ClassID: "b"},
		},
		Descriptions: []steam.Description{
			{ClassID: "a", Name: "Chroma Case", IconURL: "icon-a", Marketable: 1},
			{ClassID: "b", Name: "Danger Zone Case", IconURL: "icon-b", Marketable: 1},
		},
		Success: 1,
	}
}

func newTestService(t *testing.T) (*Service, *fakeGateway, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	gateway := &fakeGateway{
		steamID:   "123",
		user:      &models.User{Nick: "Gabe", AvatarHash: "abcd"},
		inventory: caseInventory(),
		prices: map[string]float64{
			"Chroma Case":      10.00,
			"Danger Zone Case": 5.00,
		},
	}
	rates := &fakeRates{rates: map[string]float64{"EUR": 0.9, "PLN": 4.0}}

	svc := New(store.New(db), gateway, rates, Options{
		FreshnessWindow: 3 * time.Hour,
		Currencies:      []string{"PLN", "EUR"},
		ItemFilter:      "Case",
	})
	return svc, gateway, db
}

func TestSyncUserCreatesCompleteSnapshot(t *testing.T) {
	svc, _, db := newTestService(t)

	valuation, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)
	require.NotNil(t, valuation.Update)
	assert.False(t, valuation.Cached)
	assert.Equal(t, "Gabe", valuation.User.Nick)

	// One price per normalized item, one rate per tracked currency.
	var prices, currencyRates int64
	db.Model(&models.ItemPrice{}).Where("update_id = ?", valuation.Update.ID).Count(&prices)
	db.Model(&models.CurrencyRate{}).Where("update_id = ?", valuation.Update.ID).Count(&currencyRates)
	assert.EqualValues(t, 2, prices)
	assert.EqualValues(t, 2, currencyRates)

	require.Len(t, valuation.Holdings, 2)
	require.Len(t, valuation.Series, 3) // USD + EUR + PLN
	assert.InDelta(t, 25.00, valuation.Series[0].Value, 1e-9)
}

func TestSyncUserAllOrNothingOnPriceFailure(t *testing.T) {
	svc, gateway, db := newTestService(t)
	delete(gateway.prices, "Danger Zone Case")

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPriceFetchIncomplete))

	// A subsequent read shows no new rows at all.
	var users, updates, prices int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Update{}).Count(&updates)
	db.Model(&models.ItemPrice{}).Count(&prices)
	assert.Zero(t, users)
	assert.Zero(t, updates)
	assert.Zero(t, prices)
}

func TestSyncUserFreshnessWindow(t *testing.T) {
	svc, gateway, _ := newTestService(t)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, 1, gateway.inventoryCalls)

	// One minute inside the window: cached, no external fetch.
	svc.now = func() time.Time { return start.Add(3*time.Hour - time.Minute) }
	valuation, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)
	assert.True(t, valuation.Cached)
	assert.Equal(t, 1, gateway.inventoryCalls)

	// One minute past the window: a fresh sync runs.
	svc.now = func() time.Time { return start.Add(3*time.Hour + time.Minute) }
	valuation, err = svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)
	assert.False(t, valuation.Cached)
	assert.Equal(t, 2, gateway.inventoryCalls)
}

func TestSyncUserForceOverridesFreshness(t *testing.T) {
	svc, gateway, _ := newTestService(t)

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)

	valuation, err := svc.SyncUser(context.Background(), "gabe", true, time.Unix(0, 0))
	require.NoError(t, err)
	assert.False(t, valuation.Cached)
	assert.Equal(t, 2, gateway.inventoryCalls)
}

func TestSyncUserIdentityNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SyncUser(context.Background(), "nobody", false, time.Unix(0, 0))
	assert.True(t, errors.Is(err, ErrIdentityNotFound))
}

func TestSyncUserEmptyInventory(t *testing.T) {
	svc, gateway, db := newTestService(t)
	gateway.inventory = &steam.Inventory{Success: 1}

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	assert.True(t, errors.Is(err, ErrEmptyInventory))

	var updates int64
	db.Model(&models.Update{}).Count(&updates)
	assert.Zero(t, updates)
}

func TestSyncUserRatesFailureAborts(t *testing.T) {
	svc, _, db := newTestService(t)
	svc.rates = &fakeRates{err: errors.New("rates api down")}

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.Error(t, err)

	var updates int64
	db.Model(&models.Update{}).Count(&updates)
	assert.Zero(t, updates)
}

func TestSecondSyncReconcilesAndKeepsHistory(t *testing.T) {
	svc, gateway, db := newTestService(t)

	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)

	// Next sync drops Danger Zone Case and adds Snakebite Case.
	gateway.inventory = &steam.Inventory{
		Assets: []steam.Asset{
			{AssetID: "x1", ClassID: "a"},
			{AssetID: "x2", ClassID: "a"},
			{AssetID: "x4", ClassID: "c"},
			{AssetID: "x5", ClassID: "c"},
			{AssetID: "x6", ClassID: "c"},
		},
		Descriptions: []steam.Description{
			{ClassID: "a", Name: "Chroma Case", IconURL: "icon-a", Marketable: 1},
			{ClassID: "c", Name: "Snakebite Case", IconURL: "icon-c", Marketable: 1},
		},
		Success: 1,
	}
	gateway.prices = map[string]float64{
		"Chroma Case":    10.00,
		"Snakebite Case": 2.00,
	}
	svc.now = func() time.Time { return start.Add(4 * time.Hour) }

	valuation, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)

	var owned []models.UserItem
	require.NoError(t, db.Order("item_id").Find(&owned).Error)
	require.Len(t, owned, 2)
	assert.Equal(t, "a", owned[0].ItemID)
	assert.Equal(t, "c", owned[1].ItemID)

	// Both snapshots present; earlier price facts were not rewritten.
	var updates, prices int64
	db.Model(&models.Update{}).Count(&updates)
	db.Model(&models.ItemPrice{}).Count(&prices)
	assert.EqualValues(t, 2, updates)
	assert.EqualValues(t, 4, prices)

	require.Len(t, valuation.Holdings, 2)
}

func TestRefreshProfileUpdatesDisplayFieldsOnly(t *testing.T) {
	svc, gateway, db := newTestService(t)

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)

	gateway.user = &models.User{Nick: "GabeN", AvatarHash: "efgh"}
	user, err := svc.RefreshProfile(context.Background(), "gabe")
	require.NoError(t, err)
	assert.Equal(t, "GabeN", user.Nick)

	var updates int64
	db.Model(&models.Update{}).Count(&updates)
	assert.EqualValues(t, 1, updates)
}

func TestRefreshInventoryWritesNoSnapshot(t *testing.T) {
	svc, gateway, db := newTestService(t)

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)

	gateway.inventory = &steam.Inventory{
		Assets: []steam.Asset{{AssetID: "x1", ClassID: "a"}},
		Descriptions: []steam.Description{
			{ClassID: "a", Name: "Chroma Case", IconURL: "icon-a", Marketable: 1},
		},
		Success: 1,
	}
	require.NoError(t, svc.RefreshInventory(context.Background(), "gabe"))

	var owned []models.UserItem
	require.NoError(t, db.Find(&owned).Error)
	require.Len(t, owned, 1)
	assert.EqualValues(t, 1, owned[0].Count)

	var updates int64
	db.Model(&models.Update{}).Count(&updates)
	assert.EqualValues(t, 1, updates)
}

func TestDeleteUser(t *testing.T) {
	svc, _, db := newTestService(t)

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(context.Background(), "gabe"))

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Zero(t, users)

	err = svc.DeleteUser(context.Background(), "gabe")
	assert.True(t, errors.Is(err, ErrIdentityNotFound))
}

func TestHubPublishDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Overflow the buffer; Publish must drop rather than stall.
	for i := 0; i < 100; i++ {
		hub.Publish(SyncEvent{User: "gabe", Stage: StagePricing})
	}

	event := <-ch
	assert.Equal(t, StagePricing, event.Stage)
}

func TestSyncEmitsEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ch := svc.Events().Subscribe()
	defer svc.Events().Unsubscribe(ch)

	_, err := svc.SyncUser(context.Background(), "gabe", false, time.Unix(0, 0))
	require.NoError(t, err)

	stages := map[Stage]bool{}
	for len(ch) > 0 {
		stages[(<-ch).Stage] = true
	}
	assert.True(t, stages[StageResolving])
	assert.True(t, stages[StagePricing])
	assert.True(t, stages[StageCommitting])
	assert.True(t, stages[StageDone])
}
