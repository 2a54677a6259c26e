package store

import (
	"context"
	"testing"

	"github.com/erazemk/terenec/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetSite(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	site, err := CreateSite(ctx, database, "Boiler room", "Celovška 1, Ljubljana", 46.0569, 14.5058)
	require.NoError(t, err)
	assert.Equal(t, "Boiler room", site.Name)
	assert.InDelta(t, 46.0569, site.Latitude, 1e-9)

	got, err := GetSite(ctx, database, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "Celovška 1, Ljubljana", got.Address)

	missing, err := GetSite(ctx, database, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteSiteWithOpenJobFails(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	site, _ := CreateSite(ctx, database, "Plant", "", 0, 0)
	_, err := CreateJob(ctx, database, "Service pump", "", site.ID, nil)
	require.NoError(t, err)

	assert.Error(t, DeleteSite(ctx, database, site.ID))
}

func TestDeleteSiteWithoutJobs(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	site, _ := CreateSite(ctx, database, "Empty lot", "", 0, 0)
	require.NoError(t, DeleteSite(ctx, database, site.ID))

	sites, err := ListSites(ctx, database)
	require.NoError(t, err)
	assert.Empty(t, sites)
}
