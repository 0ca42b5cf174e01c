package am

// Config represents the semstore configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Store    StoreConfig    `mapstructure:"store" toml:"store"`
	Query    QueryConfig    `mapstructure:"query" toml:"query"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// DatabaseConfig selects the backing database
type DatabaseConfig struct {
	Dialect string `mapstructure:"dialect" toml:"dialect"` // "sqlite3" or "postgres"
	Path    string `mapstructure:"path" toml:"path"`       // SQLite file path (sqlite3 only)
	DSN     string `mapstructure:"dsn" toml:"dsn"`         // Connection string (postgres only)
}

// StoreConfig configures table layout and the in-process caches
type StoreConfig struct {
	// Properties declares types for user properties and which of them get a dedicated table.
	// Undeclared properties are stored by the kind of the value written.
	Properties []PropertyConfig `mapstructure:"properties" toml:"properties"`

	IDCacheSize         int  `mapstructure:"id_cache_size" toml:"id_cache_size"`                   // general id cache capacity
	PropertyIDCacheSize int  `mapstructure:"property_id_cache_size" toml:"property_id_cache_size"` // property id cache capacity
	StubCacheSize       int  `mapstructure:"stub_cache_size" toml:"stub_cache_size"`               // recently read subjects kept in memory
	ResolveRedirects    bool `mapstructure:"resolve_redirects" toml:"resolve_redirects"`           // follow one redirect hop on lookups
}

// PropertyConfig declares a user property
type PropertyConfig struct {
	Key   string `mapstructure:"key" toml:"key"`
	Type  string `mapstructure:"type" toml:"type"`   // number, text, boolean, uri, time, geo, page, record, property
	Fixed bool   `mapstructure:"fixed" toml:"fixed"` // store in a dedicated table without a property column
}

// QueryConfig configures the condition compiler
type QueryConfig struct {
	MaterializeThreshold int `mapstructure:"materialize_threshold" toml:"materialize_threshold"` // conjunctions wider than this go to a temp table
	DefaultLimit         int `mapstructure:"default_limit" toml:"default_limit"`
	MaxLimit             int `mapstructure:"max_limit" toml:"max_limit"` // 0 = no cap
	MaxDepth             int `mapstructure:"max_depth" toml:"max_depth"` // nesting depth of condition trees

	// ConceptCacheLifetimeMinutes bounds how long cached concept members are trusted (0 = never use cache)
	ConceptCacheLifetimeMinutes int `mapstructure:"concept_cache_lifetime_minutes" toml:"concept_cache_lifetime_minutes"`
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// Supported dialect names
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)
