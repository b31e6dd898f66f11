package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestPlanLimit(t *testing.T) {
	p := Plan{Features: datatypes.JSONMap{
		FeatureMaxBoards: float64(3),
		FeatureMaxTeams:  float64(-1),
	}}

	assert.Equal(t, int64(3), p.Limit(FeatureMaxBoards))
	assert.Equal(t, Unlimited, p.Limit(FeatureMaxTeams))
	assert.Equal(t, Unlimited, p.Limit(FeatureMaxUsers))
	assert.Equal(t, Unlimited, p.Limit("nonsense"))
}

func TestPlanIsFree(t *testing.T) {
	assert.True(t, Plan{PriceCents: 0}.IsFree())
	assert.False(t, Plan{PriceCents: 2900}.IsFree())
}

func setupPlanRepo(t *testing.T) Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&Plan{}))
	return NewRepository(gdb)
}

func TestRepositoryUpsert(t *testing.T) {
	repo := setupPlanRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, Plan{
		Slug: "pro-monthly", Name: "Pro Monthly", PriceCents: 2900,
		Currency: "usd", Interval: "month", ProviderPriceID: "price_1",
		Features: datatypes.JSONMap{}, IsActive: true,
	}))
	require.NoError(t, repo.Upsert(ctx, Plan{
		Slug: "pro-monthly", Name: "Pro Monthly", PriceCents: 3100,
		Currency: "usd", Interval: "month", ProviderPriceID: "price_2",
		Features: datatypes.JSONMap{}, IsActive: true,
	}))

	p, err := repo.FindBySlug(ctx, "pro-monthly")
	require.NoError(t, err)
	assert.Equal(t, int64(3100), p.PriceCents)
	assert.Equal(t, "price_2", p.ProviderPriceID)
}

func TestRepositoryLookups(t *testing.T) {
	repo := setupPlanRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, Plan{
		Slug: "free", Name: "Free", Currency: "usd", Interval: "month",
		Features: datatypes.JSONMap{}, IsActive: true,
	}))
	require.NoError(t, repo.Upsert(ctx, Plan{
		Slug: "pro-monthly", Name: "Pro Monthly", PriceCents: 2900,
		Currency: "usd", Interval: "month", ProviderPriceID: "price_1",
		Features: datatypes.JSONMap{}, IsActive: true,
	}))
	require.NoError(t, repo.Upsert(ctx, Plan{
		Slug: "legacy", Name: "Legacy", PriceCents: 1900,
		Currency: "usd", Interval: "month",
		Features: datatypes.JSONMap{}, IsActive: true,
	}))
	// retire it; the update path writes is_active explicitly
	require.NoError(t, repo.Upsert(ctx, Plan{
		Slug: "legacy", Name: "Legacy", PriceCents: 1900,
		Currency: "usd", Interval: "month",
		Features: datatypes.JSONMap{}, IsActive: false,
	}))

	byPrice, err := repo.FindByProviderPrice(ctx, "price_1")
	require.NoError(t, err)
	assert.Equal(t, "pro-monthly", byPrice.Slug)

	_, err = repo.FindByProviderPrice(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindBySlug(ctx, "platinum")
	require.ErrorIs(t, err, ErrNotFound)

	active, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "free", active[0].Slug)
	assert.Equal(t, "pro-monthly", active[1].Slug)
}
