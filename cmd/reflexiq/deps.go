package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MJE43/reflex-iq/internal/config"
	"github.com/MJE43/reflex-iq/internal/keystore"
	"github.com/MJE43/reflex-iq/internal/perfects"
	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

type rootFlags struct {
	configPath string
}

func (f *rootFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, exitError(3, "%v", err)
	}
	return cfg, nil
}

// openStore opens and migrates the session database.
func openStore(cfg config.Config) (*store.SQLiteDB, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openProver loads (or creates) the seal key and builds the prover.
func openProver(cfg config.Config) (*zkvm.Prover, error) {
	ks := keystore.New(cfg.Keyring.Service, cfg.Keyring.FallbackPath)
	key, err := ks.SealKey(cfg.ProverID)
	if err != nil {
		return nil, fmt.Errorf("load seal key: %w", err)
	}
	return zkvm.NewProver(cfg.ImageLabel, key)
}

// openClassifier returns nil when classification is disabled.
func openClassifier(cfg config.Config) (*perfects.Classifier, error) {
	if !cfg.Perfects.Enabled {
		return nil, nil
	}
	src, err := cfg.Perfects.LoadRule()
	if err != nil {
		return nil, err
	}
	return perfects.New(src)
}
