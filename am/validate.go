package am

import (
	"github.com/teranos/semstore/errors"
)

var knownTypes = map[string]bool{
	"number": true, "text": true, "boolean": true, "uri": true, "time": true,
	"geo": true, "page": true, "record": true, "property": true,
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Dialect {
	case DialectSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path cannot be empty for sqlite3")
		}
	case DialectPostgres:
		if c.Database.DSN == "" {
			return errors.WithHint(
				errors.New("database.dsn cannot be empty for postgres"),
				"set SEMSTORE_DATABASE_DSN")
		}
	default:
		return errors.Newf("database.dialect must be %q or %q, got %q", DialectSQLite, DialectPostgres, c.Database.Dialect)
	}

	// Cache sizes: 0 disables the cache, negative is invalid
	if c.Store.IDCacheSize < 0 {
		return errors.Newf("store.id_cache_size must be >= 0, got %d", c.Store.IDCacheSize)
	}
	if c.Store.PropertyIDCacheSize < 0 {
		return errors.Newf("store.property_id_cache_size must be >= 0, got %d", c.Store.PropertyIDCacheSize)
	}
	if c.Store.StubCacheSize < 0 {
		return errors.Newf("store.stub_cache_size must be >= 0, got %d", c.Store.StubCacheSize)
	}

	seen := make(map[string]bool)
	for _, p := range c.Store.Properties {
		if p.Key == "" {
			return errors.New("store.properties entries need a key")
		}
		if p.Key[0] == '_' {
			return errors.Newf("store.properties: %q uses the reserved '_' prefix", p.Key)
		}
		if seen[p.Key] {
			return errors.Newf("store.properties: %q declared twice", p.Key)
		}
		seen[p.Key] = true
		if !knownTypes[p.Type] {
			return errors.Newf("store.properties: %q has unknown type %q", p.Key, p.Type)
		}
	}

	if c.Query.MaterializeThreshold < 1 {
		return errors.Newf("query.materialize_threshold must be >= 1, got %d", c.Query.MaterializeThreshold)
	}
	if c.Query.DefaultLimit < 0 {
		return errors.Newf("query.default_limit must be >= 0, got %d", c.Query.DefaultLimit)
	}
	if c.Query.MaxLimit < 0 {
		return errors.Newf("query.max_limit must be >= 0, got %d", c.Query.MaxLimit)
	}
	if c.Query.MaxDepth < 1 {
		return errors.Newf("query.max_depth must be >= 1, got %d", c.Query.MaxDepth)
	}
	if c.Query.ConceptCacheLifetimeMinutes < 0 {
		return errors.Newf("query.concept_cache_lifetime_minutes must be >= 0, got %d", c.Query.ConceptCacheLifetimeMinutes)
	}

	return nil
}
