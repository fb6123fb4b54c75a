package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenWithConfig(Config{
		Path:         filepath.Join(t.TempDir(), "worldmodel.db"),
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func lookupKeys(world *kb.Store, keywords []string) []string {
	var keys []string
	for _, fact := range world.LookupTables(keywords) {
		keys = append(keys, fact.Table+"."+fact.Column)
	}
	return keys
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	world := kb.NewStore()
	kb.SeedOMOP(world)
	world.Invalidate("condition_occurrence", "condition_name")
	library := template.NewDefaultLibrary()
	library.RecordSuccess("patient_count_by_condition")
	library.RecordSuccess("patient_count_by_condition")

	require.NoError(t, store.SaveWorldModel(ctx, world, library))

	restoredWorld := kb.NewStore()
	restoredLibrary := template.NewDefaultLibrary()
	require.NoError(t, store.LoadWorldModel(ctx, restoredWorld, restoredLibrary))

	// Lookup results must be identical to the saved store's.
	keywords := []string{"condition", "person"}
	require.Equal(t, lookupKeys(world, keywords), lookupKeys(restoredWorld, keywords))

	require.False(t, restoredWorld.Valid("condition_occurrence", "condition_name"),
		"invalidation must survive a restart")
	require.True(t, restoredWorld.Valid("condition_occurrence", "condition_concept_id"))

	_, ok := restoredWorld.JoinPathBetween("person", "condition_occurrence")
	require.True(t, ok, "seeded join paths must round-trip")

	require.Equal(t, 2, restoredLibrary.Successes()["patient_count_by_condition"])
}

func TestSaveIsIdempotent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	world := kb.NewStore()
	kb.SeedOMOP(world)

	require.NoError(t, store.SaveWorldModel(ctx, world, nil))
	require.NoError(t, store.SaveWorldModel(ctx, world, nil))

	restored := kb.NewStore()
	require.NoError(t, store.LoadWorldModel(ctx, restored, nil))
	require.Len(t, restored.Facts(), len(world.Facts()))
	require.Len(t, restored.JoinPaths(), len(world.JoinPaths()))
}

func TestStaleSaveDoesNotResurrectColumns(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	world := kb.NewStore()
	kb.SeedOMOP(world)
	world.Invalidate("drug_exposure", "drug_name")
	require.NoError(t, store.SaveWorldModel(ctx, world, nil))

	// An older observation claiming the column exists must lose.
	stale := kb.NewStore()
	stale.RecordFact(kb.SchemaFact{
		Table:     "drug_exposure",
		Column:    "drug_name",
		DataType:  "VARCHAR",
		UpdatedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, store.SaveWorldModel(ctx, stale, nil))

	restored := kb.NewStore()
	require.NoError(t, store.LoadWorldModel(ctx, restored, nil))
	require.False(t, restored.Valid("drug_exposure", "drug_name"))
}

func TestLoadSkipsDanglingJoinPaths(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	world := kb.NewStore()
	kb.SeedOMOP(world)
	// Mark an entire table absent after its join paths were cached. On load
	// the paths to it fail endpoint validation and must be skipped, not fail
	// the whole load.
	world.Invalidate("drug_exposure", "")
	require.NoError(t, store.SaveWorldModel(ctx, world, nil))

	restored := kb.NewStore()
	require.NoError(t, store.LoadWorldModel(ctx, restored, nil))
	require.False(t, restored.TableKnown("drug_exposure"))
	_, ok := restored.JoinPathBetween("person", "drug_exposure")
	require.False(t, ok)
	_, ok = restored.JoinPathBetween("person", "condition_occurrence")
	require.True(t, ok)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := OpenWithConfig(Config{})
	require.Error(t, err)
}
