package cloudflare

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const hashPrefix = "sha256:"

// ErrHashMismatch is returned by VerifySnapshot when the content does not
// match its recorded hash
var ErrHashMismatch = errors.New("snapshot hash does not match its content")

// Snapshot is an integrity-stamped export of a secondary data type
type Snapshot[T any] struct {
	Data      T      `json:"data"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
}

// snapshotHash digests the canonical JSON of {payload, timestamp}.
// encoding/json emits struct fields in declaration order and sorts map keys,
// so equal inputs always produce equal bytes.
func snapshotHash[T any](payload T, timestamp string) (string, error) {
	canonical, err := json.Marshal(struct {
		Payload   T      `json:"payload"`
		Timestamp string `json:"timestamp"`
	}{payload, timestamp})
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hashPrefix + hex.EncodeToString(sum[:]), nil
}

// NewSnapshot stamps data with the given time and its hash
func NewSnapshot[T any](data T, at time.Time) (*Snapshot[T], error) {
	timestamp := at.UTC().Format(time.RFC3339Nano)
	hash, err := snapshotHash(data, timestamp)
	if err != nil {
		return nil, err
	}
	return &Snapshot[T]{Data: data, Hash: hash, Timestamp: timestamp}, nil
}

// VerifySnapshot recomputes the hash of s and compares it to the recorded one
func VerifySnapshot[T any](s *Snapshot[T]) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	if !strings.HasPrefix(s.Hash, hashPrefix) {
		return fmt.Errorf("unsupported snapshot hash %q", s.Hash)
	}
	want, err := snapshotHash(s.Data, s.Timestamp)
	if err != nil {
		return err
	}
	if want != s.Hash {
		return ErrHashMismatch
	}
	return nil
}

// Exporter produces snapshots of lifecycle rules and audit logs
type Exporter struct {
	API *API
	// Now defaults to time.Now
	Now func() time.Time
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ExportLifecycle snapshots a bucket's lifecycle rules. It returns nil when
// the bucket has none.
func (e *Exporter) ExportLifecycle(ctx context.Context, bucket string) (*Snapshot[R2Lifecycle], error) {
	lifecycle, err := e.API.R2.GetLifecycle(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("fetching lifecycle for bucket %v: %w", bucket, err)
	}
	if lifecycle == nil {
		return nil, nil
	}
	return NewSnapshot(*lifecycle, e.now())
}

// ExportAuditLogs snapshots the audit log entries matching query
func (e *Exporter) ExportAuditLogs(ctx context.Context, query AuditLogQuery) (*Snapshot[[]AuditLog], error) {
	logs, err := e.API.ZeroTrust.ListAuditLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching audit logs: %w", err)
	}
	if logs == nil {
		logs = []AuditLog{}
	}
	return NewSnapshot(logs, e.now())
}
