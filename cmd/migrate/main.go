// Package main applies the PostgreSQL blacklist migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/viper"

	"github.com/cory-johannsen/smuggle/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	migrationsDir := flag.String("migrations", "migrations", "directory of migration files")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	v := config.NewViper()
	v.SetConfigFile(*configPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("reading config: %v", err)
	}
	dbCfg, err := databaseConfig(v)
	if err != nil {
		log.Fatalf("parsing database config: %v", err)
	}

	m, err := migrate.New("file://"+*migrationsDir, dbCfg.DSN())
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction %q: must be 'up' or 'down'", *direction)
	}

	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, _ := m.Version()
	elapsed := time.Since(start)

	if noChange {
		fmt.Fprintf(os.Stdout, "no changes (version=%d dirty=%v) [%s]\n", version, dirty, elapsed)
	} else {
		fmt.Fprintf(os.Stdout, "migrated %s to version=%d dirty=%v [%s]\n", *direction, version, dirty, elapsed)
	}
}

// databaseConfig reads only the database section so migrations run whatever
// blacklist store the server is configured with.
func databaseConfig(v *viper.Viper) (config.DatabaseConfig, error) {
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return config.DatabaseConfig{}, err
	}
	if cfg.Database.Host == "" || cfg.Database.Name == "" {
		return config.DatabaseConfig{}, errors.New("database.host and database.name are required")
	}
	return cfg.Database, nil
}
