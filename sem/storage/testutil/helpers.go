// Package testutil builds stores over in-memory databases for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/db"
	semtest "github.com/teranos/semstore/internal/testing"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/types"
)

// Clock is a settable time source
type Clock struct {
	T time.Time
}

// Now returns the clock's time
func (c *Clock) Now() time.Time { return c.T }

// Config returns the default configuration with props declared
func Config(props ...am.PropertyConfig) *am.Config {
	cfg := am.Default()
	cfg.Store.Properties = append(cfg.Store.Properties, props...)
	return cfg
}

// SetupStore returns a set-up store over a fresh in-memory database
func SetupStore(t *testing.T, props ...am.PropertyConfig) *storage.Store {
	t.Helper()
	return SetupStoreWith(t, Config(props...), storage.Options{})
}

// SetupStoreWith returns a set-up store built from cfg and opts
func SetupStoreWith(t *testing.T, cfg *am.Config, opts storage.Options) *storage.Store {
	t.Helper()
	conn := semtest.CreateTestDB(t)
	if opts.Dialect == nil {
		opts.Dialect = db.SQLite
	}
	store, err := storage.New(conn, cfg, opts)
	require.NoError(t, err)
	require.NoError(t, store.Setup(context.Background()))
	return store
}

// Page returns a main-namespace page reference
func Page(title string) types.EntityRef {
	return types.NewPage(title, types.NSMain)
}

// Facts builds a fact set for subject from property/value pairs
func Facts(subject types.EntityRef, pairs ...interface{}) *types.SemanticData {
	data := types.NewSemanticData(subject)
	for i := 0; i+1 < len(pairs); i += 2 {
		data.AddValue(types.NewProperty(pairs[i].(string)), pairs[i+1].(types.DataItem))
	}
	return data
}
