package service

import (
	"context"
	"hash/fnv"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/addressing"
	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/metrics"
	"github.com/stratadb/strata/internal/model"
	"github.com/stratadb/strata/internal/storage/lineage"
	"github.com/stratadb/strata/internal/storage/versionstore"
	"github.com/stratadb/strata/internal/tier"
	"github.com/stratadb/strata/internal/validation"
)

// tombstonePayload is the sentinel value a delete writes. It flows through
// content addressing like any other payload, so repeated deletes dedupe.
const tombstonePayload = `{"__tombstone__":true}`

// keyStripes bounds the per-key lock table
const keyStripes = 128

// StorageService is the orchestration layer of the engine: it ties the
// content addressor, commit log, version store, lineage graph, and tier
// manager into the put/get/history surface. Writes to the same key are
// serialized on a striped lock; writes to different keys run in parallel.
type StorageService struct {
	commitLog AppendLog
	store     *versionstore.Store
	graph     *lineage.Graph
	tiers     *tier.Manager
	addressor *addressing.Addressor
	clock     *addressing.MonotonicClock
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    *zap.Logger
	locks     [keyStripes]sync.Mutex
}

// NewStorageService creates a new storage service
func NewStorageService(
	commitLog AppendLog,
	store *versionstore.Store,
	graph *lineage.Graph,
	tiers *tier.Manager,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StorageService {
	return &StorageService{
		commitLog: commitLog,
		store:     store,
		graph:     graph,
		tiers:     tiers,
		addressor: addressing.NewAddressor(),
		clock:     addressing.NewMonotonicClock(),
		validator: validation.NewValidator(),
		metrics:   m,
		logger:    logger,
	}
}

// ReadResult carries a record together with the tier that served it
type ReadResult struct {
	Record *model.VersionedRecord
	Source string
}

// Put appends a new version for the key. The write is durably logged
// before anything becomes visible: a commit log failure surfaces as
// PersistenceFailure and leaves no trace in the store, graph, or tiers.
func (s *StorageService) Put(ctx context.Context, namespace, key string, value []byte) (*model.VersionedRecord, error) {
	return s.put(ctx, namespace, key, value, false)
}

// Delete appends a tombstone version for the key. Prior history is
// retained; only the current pointer now resolves to the delete marker.
func (s *StorageService) Delete(ctx context.Context, namespace, key string) (*model.VersionedRecord, error) {
	if err := s.validator.ValidateRead(namespace, key); err != nil {
		return nil, err
	}
	return s.put(ctx, namespace, key, []byte(tombstonePayload), true)
}

func (s *StorageService) put(ctx context.Context, namespace, key string, value []byte, deleted bool) (*model.VersionedRecord, error) {
	startTime := time.Now()

	if err := s.validator.ValidateWrite(namespace, key, value); err != nil {
		s.logger.Warn("Write validation failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		return nil, err
	}

	contentID, err := s.addressor.Identify(value)
	if err != nil {
		s.logger.Warn("Content addressing failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		return nil, err
	}

	fullKey := model.FullKey{Namespace: namespace, Key: key}

	// Same-key writes serialize here so previous-write chains never fork
	lock := s.keyLock(fullKey.String())
	lock.Lock()
	defer lock.Unlock()

	previous, _ := s.store.CurrentWriteID(fullKey)
	timestamp := s.clock.Next()
	writeID := addressing.NewWriteID(contentID, timestamp)

	opType := model.OperationTypeWrite
	if deleted {
		opType = model.OperationTypeDelete
	}
	entry := &model.LogEntry{
		Namespace:       namespace,
		Key:             key,
		WriteID:         writeID,
		ContentID:       contentID,
		PreviousWriteID: previous,
		Value:           value,
		Timestamp:       timestamp,
		OperationType:   opType,
	}

	// Durability precedes visibility: nothing below runs if the append fails
	if err := s.commitLog.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append to commit log",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		return nil, errors.PersistenceFailure("failed to append to commit log", err)
	}

	var parents []string
	if previous != "" {
		parents = []string{previous}
	}
	if err := s.graph.Record(writeID, parents); err != nil {
		// Graph integrity failures are fatal for this write path; the
		// record never becomes visible
		s.logger.Error("Lineage graph rejected write",
			zap.String("write_id", writeID),
			zap.Error(err))
		return nil, err
	}

	rec := &model.VersionedRecord{
		ContentID:       contentID,
		WriteID:         writeID,
		Value:           value,
		Timestamp:       timestamp,
		PreviousWriteID: previous,
		Deleted:         deleted,
	}
	s.store.Append(rec)
	s.store.SetCurrent(fullKey, writeID)

	s.tiers.Insert(&model.TierEntry{
		FullKey:   fullKey.String(),
		WriteID:   writeID,
		ContentID: contentID,
	})

	if s.metrics != nil {
		s.metrics.RecordPut(time.Since(startTime).Seconds(), len(value))
	}

	s.logger.Debug("Write completed",
		zap.String("namespace", namespace),
		zap.String("key", key),
		zap.String("write_id", writeID),
		zap.Duration("latency", time.Since(startTime)))

	return rec, nil
}

// Get returns the key's current record. The tier cascade is consulted
// first; a full tier miss with a version store hit is the cold-start path
// and re-seeds the hot tier.
func (s *StorageService) Get(ctx context.Context, namespace, key string) (*ReadResult, error) {
	startTime := time.Now()

	if err := s.validator.ValidateRead(namespace, key); err != nil {
		return nil, err
	}

	fullKey := model.FullKey{Namespace: namespace, Key: key}

	if entry, source, ok := s.tiers.Lookup(fullKey.String()); ok {
		if rec, found := s.store.Record(entry.WriteID); found {
			if s.metrics != nil {
				s.metrics.RecordGet(time.Since(startTime).Seconds(), string(source))
			}
			if rec.Deleted {
				return nil, errors.KeyNotFound(namespace, key)
			}
			return &ReadResult{Record: rec, Source: string(source)}, nil
		}
	}

	rec, ok := s.store.Current(fullKey)
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordGetMiss()
		}
		return nil, errors.KeyNotFound(namespace, key)
	}
	if rec.Deleted {
		return nil, errors.KeyNotFound(namespace, key)
	}

	// Cold-start: tiers know nothing of this key but the store does
	s.tiers.Insert(&model.TierEntry{
		FullKey:   fullKey.String(),
		WriteID:   rec.WriteID,
		ContentID: rec.ContentID,
	})

	if s.metrics != nil {
		s.metrics.RecordGet(time.Since(startTime).Seconds(), "store")
	}
	return &ReadResult{Record: rec, Source: "store"}, nil
}

// GetAt returns the version the key held at the given timestamp, walking
// the version chain newest-first
func (s *StorageService) GetAt(ctx context.Context, namespace, key string, timestamp int64) (*model.VersionedRecord, error) {
	if err := s.validator.ValidateRead(namespace, key); err != nil {
		return nil, err
	}

	fullKey := model.FullKey{Namespace: namespace, Key: key}
	if _, ok := s.store.CurrentWriteID(fullKey); !ok {
		return nil, errors.KeyNotFound(namespace, key)
	}

	rec, ok := s.store.VersionAt(fullKey, timestamp)
	if !ok {
		return nil, errors.NoValueAtTimestamp(namespace, key, timestamp)
	}
	if rec.Deleted {
		return nil, errors.KeyNotFound(namespace, key)
	}
	return rec, nil
}

// History returns the key's versions newest-first, delete markers included
func (s *StorageService) History(ctx context.Context, namespace, key string) (iter.Seq[*model.VersionedRecord], error) {
	if err := s.validator.ValidateRead(namespace, key); err != nil {
		return nil, err
	}

	fullKey := model.FullKey{Namespace: namespace, Key: key}
	if _, ok := s.store.CurrentWriteID(fullKey); !ok {
		return nil, errors.KeyNotFound(namespace, key)
	}
	return s.store.History(fullKey), nil
}

// Ancestors exposes the lineage traversal for diff and merge layers
func (s *StorageService) Ancestors(writeID string) iter.Seq[string] {
	return s.graph.Ancestors(writeID)
}

// Descendants exposes the lineage traversal for diff and merge layers
func (s *StorageService) Descendants(writeID string) iter.Seq[string] {
	return s.graph.Descendants(writeID)
}

// LeastCommonAncestor exposes LCA computation for diff and merge layers
func (s *StorageService) LeastCommonAncestor(a, b string, maxDepth int) (string, bool) {
	return s.graph.LeastCommonAncestor(a, b, maxDepth)
}

// Enumerate yields every (write_id, content_id) pair in a stable order for
// external reconciliation
func (s *StorageService) Enumerate() iter.Seq2[string, string] {
	return s.store.Enumerate()
}

// ContainsKey reports whether the key currently resolves to a live value
func (s *StorageService) ContainsKey(namespace, key string) bool {
	return s.store.ContainsKey(model.FullKey{Namespace: namespace, Key: key})
}

// Namespaces returns all namespaces with live keys
func (s *StorageService) Namespaces() []string {
	return s.store.Namespaces()
}

// Keys returns the live keys within a namespace
func (s *StorageService) Keys(namespace string) []string {
	return s.store.Keys(namespace)
}

// Scan yields a namespace's live keys in sorted order with their current
// records
func (s *StorageService) Scan(namespace string) iter.Seq2[string, *model.VersionedRecord] {
	return s.store.Scan(namespace)
}

// Recover rebuilds the version store, lineage graph, and current pointers
// from the commit log. Must complete before the engine accepts traffic;
// a lineage rejection during replay halts startup.
func (s *StorageService) Recover(ctx context.Context) error {
	return s.commitLog.Replay(ctx, func(entry *model.LogEntry) error {
		s.clock.Observe(entry.Timestamp)

		var parents []string
		if entry.PreviousWriteID != "" {
			parents = []string{entry.PreviousWriteID}
		}
		if err := s.graph.Record(entry.WriteID, parents); err != nil {
			return errors.CorruptedReplay("lineage graph rejected replayed write", err).
				WithDetail("write_id", entry.WriteID)
		}

		fullKey := model.FullKey{Namespace: entry.Namespace, Key: entry.Key}
		s.store.Append(&model.VersionedRecord{
			ContentID:       entry.ContentID,
			WriteID:         entry.WriteID,
			Value:           entry.Value,
			Timestamp:       entry.Timestamp,
			PreviousWriteID: entry.PreviousWriteID,
			Deleted:         entry.OperationType == model.OperationTypeDelete,
		})
		s.store.SetCurrent(fullKey, entry.WriteID)
		if s.metrics != nil {
			s.metrics.RecordReplayedEntry()
		}
		return nil
	})
}

// EngineStats aggregates store, dedup, lineage, and tier occupancy
type EngineStats struct {
	KeyCount         int
	VersionCount     int
	UniqueValueCount int
	DedupRatio       float64
	LineageNodes     int
	LineageEdges     int
	Tiers            tier.Stats
}

// Stats returns a point-in-time view of engine occupancy
func (s *StorageService) Stats() EngineStats {
	versions := s.store.VersionCount()
	unique := s.store.UniqueValueCount()
	ratio := 1.0
	if versions > 0 {
		ratio = float64(unique) / float64(versions)
	}
	return EngineStats{
		KeyCount:         s.store.KeyCount(),
		VersionCount:     versions,
		UniqueValueCount: unique,
		DedupRatio:       ratio,
		LineageNodes:     s.graph.NodeCount(),
		LineageEdges:     s.graph.EdgeCount(),
		Tiers:            s.tiers.Stats(),
	}
}

// ExportGenome serializes the deep tier and lineage topology
func (s *StorageService) ExportGenome() ([]byte, error) {
	return s.tiers.ExportGenome(s.graph.Roots(), s.graph.NodeCount(), s.graph.EdgeCount())
}

func (s *StorageService) keyLock(fullKey string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fullKey))
	return &s.locks[h.Sum32()%keyStripes]
}
