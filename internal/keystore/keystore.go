// Package keystore keeps the prover's seal key in the OS keychain, with a
// JSON file fallback for hosts that have no keyring service.
package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	defaultService = "reflex-iq"
	sealKeySize    = 32
)

// ErrNotFound is returned when no key exists for a prover.
var ErrNotFound = keyring.ErrNotFound

// Store wraps the OS keychain.
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// New creates a keystore. fallbackPath may be empty to disable the file
// fallback.
func New(serviceName, fallbackPath string) *Store {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultService
	}
	return &Store{service: serviceName, fallbackPath: fallbackPath}
}

func (s *Store) user(proverID string) string {
	return proverID + "/sealkey"
}

// SealKey returns the prover's seal key, generating and persisting a fresh
// random key on first use.
func (s *Store) SealKey(proverID string) ([]byte, error) {
	key, err := s.Get(proverID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	key = make([]byte, sealKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keystore: generate seal key: %w", err)
	}
	if err := s.Set(proverID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Get loads an existing key.
func (s *Store) Get(proverID string) ([]byte, error) {
	proverID = strings.TrimSpace(proverID)
	if proverID == "" {
		return nil, fmt.Errorf("keystore: prover id is required")
	}

	val, err := keyring.Get(s.service, s.user(proverID))
	if err == nil {
		return decodeKey(val)
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keystore: keyring get: %w", err)
	}

	fallback, ferr := s.getFallback(proverID)
	if ferr == nil {
		return decodeKey(fallback)
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	return nil, ferr
}

// Set stores key for proverID.
func (s *Store) Set(proverID string, key []byte) error {
	proverID = strings.TrimSpace(proverID)
	if proverID == "" {
		return fmt.Errorf("keystore: prover id is required")
	}
	val := hex.EncodeToString(key)

	if err := keyring.Set(s.service, s.user(proverID), val); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("keystore: keyring set: %w", err)
	}
	return s.setFallback(proverID, val)
}

// Delete removes the key from the keychain and the fallback file.
func (s *Store) Delete(proverID string) error {
	err := keyring.Delete(s.service, s.user(proverID))
	ferr := s.deleteFallback(proverID)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("keystore: keyring delete: %w", err)
	}
	return ferr
}

func decodeKey(val string) ([]byte, error) {
	key, err := hex.DecodeString(val)
	if err != nil {
		return nil, fmt.Errorf("keystore: stored key is not hex: %w", err)
	}
	return key, nil
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackKeys map[string]string

func (s *Store) setFallback(proverID, val string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("keystore: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[proverID] = val
	return s.writeFallbackUnlocked(data)
}

func (s *Store) getFallback(proverID string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", fmt.Errorf("keystore: fallback path not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[proverID]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *Store) deleteFallback(proverID string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[proverID]; !ok {
		return nil
	}
	delete(data, proverID)
	return s.writeFallbackUnlocked(data)
}

func (s *Store) readFallbackUnlocked() (fallbackKeys, error) {
	out := fallbackKeys{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("keystore: read fallback keys: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("keystore: decode fallback keys: %w", err)
	}
	return out, nil
}

func (s *Store) writeFallbackUnlocked(data fallbackKeys) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("keystore: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("keystore: encode fallback keys: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("keystore: write fallback keys: %w", err)
	}
	return nil
}
