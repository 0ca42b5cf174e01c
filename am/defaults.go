package am

import (
	"github.com/spf13/viper"
)

// Default values referenced by SetDefaults and by tests.
const (
	DefaultDatabasePath         = "semstore.db"
	DefaultIDCacheSize          = 500
	DefaultPropertyIDCacheSize  = 250
	DefaultStubCacheSize        = 100
	DefaultMaterializeThreshold = 8
	DefaultQueryLimit           = 50
	DefaultQueryMaxLimit        = 10000
	DefaultQueryMaxDepth        = 16
	DefaultConceptCacheLifetime = 24 * 60
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dialect", DialectSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)

	// Store defaults
	v.SetDefault("store.id_cache_size", DefaultIDCacheSize)
	v.SetDefault("store.property_id_cache_size", DefaultPropertyIDCacheSize)
	v.SetDefault("store.stub_cache_size", DefaultStubCacheSize)
	v.SetDefault("store.resolve_redirects", true)

	// Query defaults
	v.SetDefault("query.materialize_threshold", DefaultMaterializeThreshold)
	v.SetDefault("query.default_limit", DefaultQueryLimit)
	v.SetDefault("query.max_limit", DefaultQueryMaxLimit)
	v.SetDefault("query.max_depth", DefaultQueryMaxDepth)
	v.SetDefault("query.concept_cache_lifetime_minutes", DefaultConceptCacheLifetime)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.dsn", "SEMSTORE_DATABASE_DSN")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal; reaching this is a programming error
		panic(err)
	}
	return cfg
}
