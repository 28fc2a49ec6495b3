package database

// Config holds database connection settings.
// Driver selects the backend: "postgres" (default) or "sqlite3".
// For sqlite3 only Path is consulted.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

const (
	// DriverPostgres selects the lib/pq backend.
	DriverPostgres = "postgres"
	// DriverSQLite selects the mattn/go-sqlite3 backend.
	DriverSQLite = "sqlite3"
)

// DriverName returns the normalized sql driver name for the configuration.
func (c Config) DriverName() string {
	if c.Driver == DriverSQLite {
		return DriverSQLite
	}
	return DriverPostgres
}
