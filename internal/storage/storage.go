// Package storage keeps snapshots of daily price history in BoltDB so the
// predictor can run against a fixed, locally persisted series instead of the
// live data source.
//
// Keys are "symbol_<zero-padded unix seconds>" so a cursor walks a symbol's
// observations in time order.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"btc-direction/internal/market"

	"go.etcd.io/bbolt"
)

const (
	pricesBucket = "prices" // Bucket name for price observations
	dbFileName   = "prices.db"
)

// Store provides persistent storage for price snapshots using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the snapshot database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(pricesBucket)); err != nil {
			return fmt.Errorf("create prices bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// StorePrices writes obs for symbol in a single transaction. Existing
// observations with the same timestamp are overwritten.
func (s *Store) StorePrices(symbol string, obs []market.Observation) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(pricesBucket))

		for _, o := range obs {
			data, err := json.Marshal(o)
			if err != nil {
				return fmt.Errorf("marshal observation: %w", err)
			}
			if err := b.Put(priceKey(symbol, o.Timestamp), data); err != nil {
				return fmt.Errorf("put observation %d: %w", o.Timestamp, err)
			}
		}
		return nil
	})
}

// GetPrices returns every stored observation for symbol in ascending time order.
func (s *Store) GetPrices(symbol string) ([]market.Observation, error) {
	var obs []market.Observation

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(pricesBucket)).Cursor()
		prefix := []byte(symbol + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !isSymbolKey(k, prefix) {
				continue // another symbol sharing the prefix, e.g. BTC_USD for BTC
			}
			var o market.Observation
			if err := json.Unmarshal(v, &o); err != nil {
				continue // Skip malformed records
			}
			obs = append(obs, o)
		}
		return nil
	})

	return obs, err
}

// LatestTimestamp returns the newest stored timestamp for symbol, or false
// when the symbol has no observations.
func (s *Store) LatestTimestamp(symbol string) (int64, bool, error) {
	var (
		ts    int64
		found bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(pricesBucket)).Cursor()
		prefix := []byte(symbol + "_")

		// Seek past the symbol's key range then step back once.
		k, v := c.Seek(append([]byte(symbol), '_'+1))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for k != nil && bytes.HasPrefix(k, prefix) && !isSymbolKey(k, prefix) {
			k, v = c.Prev()
		}
		if k == nil || !isSymbolKey(k, prefix) {
			return nil
		}

		var o market.Observation
		if err := json.Unmarshal(v, &o); err != nil {
			return fmt.Errorf("unmarshal latest observation: %w", err)
		}
		ts, found = o.Timestamp, true
		return nil
	})

	return ts, found, err
}

func priceKey(symbol string, ts int64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", symbol, ts))
}

// isSymbolKey reports whether k is prefix followed by exactly the
// zero-padded timestamp, so "BTC_" does not match "BTC_USD_...".
func isSymbolKey(k, prefix []byte) bool {
	if !bytes.HasPrefix(k, prefix) || len(k) != len(prefix)+20 {
		return false
	}
	for _, ch := range k[len(prefix):] {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
