package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// locationsBucketName holds one nested bucket per location key, mapping
// entity name to the entity's JSON
var locationsBucketName = []byte("locations")

// ErrUnknownLocation is returned when reading a location that was never
// written
var ErrUnknownLocation = errors.New("unknown location")

// Store is a catalog backed by bbolt. It applies full mutations with
// replace-set semantics: entities absent from a mutation are removed, present
// ones are upserted, and resubmitting an unchanged set writes nothing.
type Store struct {
	db   *bbolt.DB
	path string
}

// NewStore opens the store at path, creating the file and its directory if
// needed.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(locationsBucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Apply replaces the entity set of m.LocationKey with m.Entities. Entities
// failing validation are skipped and counted as rejected. The whole
// mutation is applied in one transaction.
func (s *Store) Apply(ctx context.Context, m Mutation) (ApplyStats, error) {
	var stats ApplyStats

	if err := m.Validate(); err != nil {
		return stats, err
	}

	encoded := make(map[string][]byte, len(m.Entities))
	order := make([]string, 0, len(m.Entities))
	for i := range m.Entities {
		e := &m.Entities[i]
		if err := e.Validate(); err != nil {
			log.WithContext(ctx).WithError(err).WithFields(log.Fields{
				"locationKey": m.LocationKey,
				"entity":      e.Name(),
			}).Warn("Rejecting invalid entity")
			stats.Rejected++
			continue
		}

		data, err := json.Marshal(e)
		if err != nil {
			return ApplyStats{}, fmt.Errorf("encoding entity %v: %w", e.Name(), err)
		}
		encoded[e.Name()] = data
		order = append(order, e.Name())
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		locations := tx.Bucket(locationsBucketName)
		bucket, err := locations.CreateBucketIfNotExists([]byte(m.LocationKey))
		if err != nil {
			return err
		}

		// collect first, bbolt cursors must not be mutated during iteration
		var stale [][]byte
		err = bucket.ForEach(func(k, _ []byte) error {
			if _, keep := encoded[string(k)]; !keep {
				stale = append(stale, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			stats.Removed++
		}

		for _, name := range order {
			data := encoded[name]
			existing := bucket.Get([]byte(name))
			switch {
			case existing == nil:
				stats.Added++
			case bytes.Equal(existing, data):
				stats.Unchanged++
				continue
			default:
				stats.Updated++
			}
			if err := bucket.Put([]byte(name), data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return ApplyStats{}, fmt.Errorf("applying mutation for %v: %w", m.LocationKey, err)
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cf.catalog.locationKey", m.LocationKey),
		attribute.Int("cf.catalog.added", stats.Added),
		attribute.Int("cf.catalog.updated", stats.Updated),
		attribute.Int("cf.catalog.removed", stats.Removed),
		attribute.Int("cf.catalog.unchanged", stats.Unchanged),
		attribute.Int("cf.catalog.rejected", stats.Rejected),
	)

	return stats, nil
}

// Entities returns the entities stored under locationKey ordered by name
func (s *Store) Entities(locationKey string) ([]Entity, error) {
	var entities []Entity

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(locationsBucketName).Bucket([]byte(locationKey))
		if bucket == nil {
			return ErrUnknownLocation
		}

		entities = make([]Entity, 0, bucket.Stats().KeyN)
		return bucket.ForEach(func(k, v []byte) error {
			var e Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decoding entity %s: %w", k, err)
			}
			entities = append(entities, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entities, nil
}

// Locations lists every location key that has been written
func (s *Store) Locations() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(locationsBucketName).ForEachBucket(func(k []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
