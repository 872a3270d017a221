package config

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const (
	StoreDriverFile     = "file"
	StoreDriverSQLite   = "sqlite3"
	StoreDriverPostgres = "postgres"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetStoreDSN() string
	GetPrimaryPath() string
	GetRefreshedPath() string
	GetSealKey() (*[32]byte, error)
}

type Store struct {
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"file"`
	StoreDSN      string `env:"STORE_DSN"`
	PrimaryFile   string `env:"PRIMARY_FILE" envDefault:"database.txt"`
	RefreshedFile string `env:"REFRESHED_FILE" envDefault:"refreshed.txt"`
	SealKeyHex    string `env:"SEAL_KEY"`
}

func (s Store) GetStoreDriver() string {
	if s.StoreDriver == "" {
		return StoreDriverFile
	}
	return s.StoreDriver
}

func (s Store) GetStoreDSN() string {
	return s.StoreDSN
}

// GetSealKey decodes SEAL_KEY (64 hex chars). A nil key means records are stored in the clear.
func (s Store) GetSealKey() (*[32]byte, error) {
	if s.SealKeyHex == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s.SealKeyHex)
	if err != nil {
		return nil, fmt.Errorf("[config GetSealKey] SEAL_KEY is not hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("[config GetSealKey] SEAL_KEY must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// GetPrimaryPath and GetRefreshedPath resolve the file names against the data folder.
func (s Settings) GetPrimaryPath() string {
	return filepath.Join(s.GetDataFolder(), s.PrimaryFile)
}

func (s Settings) GetRefreshedPath() string {
	return filepath.Join(s.GetDataFolder(), s.RefreshedFile)
}
