package vectorlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/liliang-cn/vectorlite/internal/encoding"
	"github.com/liliang-cn/vectorlite/pkg/attr"
	"github.com/liliang-cn/vectorlite/pkg/coord"
	"github.com/liliang-cn/vectorlite/pkg/filter"
	"github.com/liliang-cn/vectorlite/pkg/index"
	"github.com/liliang-cn/vectorlite/pkg/snapshot"
	"github.com/liliang-cn/vectorlite/pkg/storage"
	"github.com/liliang-cn/vectorlite/pkg/store"
	"github.com/liliang-cn/vectorlite/pkg/wal"
)

// Engine is the embeddable vector database: a packed vector store, one
// of three ANN strategies, a secondary attribute index, and the WAL +
// snapshot machinery (C8-C10) that makes it durable. Writes are
// serialized through an AsyncLock; reads are not (callers that mutate
// the slices returned by Get do so at their own risk — Get defends
// against that by copying).
type Engine struct {
	name       string
	instanceID string
	dim        int
	metric     Metric
	strategy   Strategy

	store *store.Store
	attrs *attr.Index
	ann   index.Strategy

	indexAdapter storage.Adapter
	dataAdapter  storage.Adapter

	logger Logger
	lock   *coord.AsyncLock

	lastCheckpointID uint64
	closed           bool
}

// Stats is a point-in-time snapshot of engine-level counters, returned
// by Stats.
type Stats struct {
	Name       string
	InstanceID string
	Count      uint32
	Dim        int
	Capacity   uint32
	Metric     Metric
	Strategy   Strategy
}

func newStrategy(s Strategy, st *store.Store, cfg engineConfig) index.Strategy {
	switch s {
	case StrategyHNSW:
		return index.NewHNSW(st, cfg.hnsw)
	case StrategyIVF:
		return index.NewIVF(st, cfg.ivf)
	default:
		return index.NewFlat(st)
	}
}

// Open constructs an Engine named name for dim-dimensional vectors,
// applying opts over the default configuration (cosine metric,
// brute-force strategy, in-memory adapters). If the configured
// indexAdapter already holds a snapshot under this name, it is loaded
// and any WAL frames recorded since are replayed on top of it.
func Open(name string, dim int, opts ...Option) (*Engine, error) {
	if dim <= 0 {
		return nil, invalidArg("Open", fmt.Errorf("dim must be positive, got %d", dim))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.indexAdapter == nil {
		cfg.indexAdapter = storage.NewMemAdapter()
	}
	if cfg.dataAdapter == nil {
		cfg.dataAdapter = storage.NewMemAdapter()
	}

	st := store.New(dim, cfg.metric, cfg.capacity)
	eng := &Engine{
		name:         name,
		instanceID:   uuid.New().String(),
		dim:          dim,
		metric:       cfg.metric,
		strategy:     cfg.strategy,
		store:        st,
		attrs:        attr.New(),
		ann:          newStrategy(cfg.strategy, st, cfg),
		indexAdapter: cfg.indexAdapter,
		dataAdapter:  cfg.dataAdapter,
		logger:       cfg.logger,
		lock:         coord.NewAsyncLock(),
	}

	ctx := context.Background()
	if err := eng.loadSnapshot(ctx); err != nil {
		return nil, err
	}
	if err := eng.replayWal(ctx); err != nil {
		return nil, err
	}

	eng.logger.Info("engine opened", "name", name, "instance", eng.instanceID, "dim", dim,
		"metric", cfg.metric.String(), "strategy", cfg.strategy.String(), "count", st.Len())
	return eng, nil
}

func (e *Engine) snapKey() string { return e.name + ".snap" }
func (e *Engine) walKey() string  { return e.name + ".wal" }

func (e *Engine) setAttrsFromMeta(id uint32, meta any) {
	if m, ok := meta.(map[string]any); ok {
		e.attrs.SetAttrs(id, m)
		return
	}
	e.attrs.SetAttrs(id, nil)
}

func (e *Engine) loadSnapshot(ctx context.Context) error {
	raw, err := e.indexAdapter.Read(ctx, e.snapKey())
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr("Open", err)
	}

	snap, err := snapshot.Decode(raw)
	if err != nil {
		return wrapErr("Open", CodeCorruptSnapshot, err)
	}

	m, err := decodeMetric(snap.Header.MetricCode)
	if err != nil {
		return wrapErr("Open", CodeCorruptSnapshot, err)
	}
	strat, err := decodeStrategy(snap.Header.StrategyCode)
	if err != nil {
		return wrapErr("Open", CodeCorruptSnapshot, err)
	}
	if m != e.metric || strat != e.strategy || int(snap.Header.Dim) != e.dim {
		return wrapErr("Open", CodeCorruptSnapshot,
			fmt.Errorf("snapshot metric/strategy/dim does not match engine configuration"))
	}

	for i, id := range snap.IDs {
		var meta any
		if len(snap.MetaJSON[i]) > 0 {
			if err := json.Unmarshal(snap.MetaJSON[i], &meta); err != nil {
				return wrapErr("Open", CodeCorruptSnapshot, fmt.Errorf("decoding meta for id %d: %w", id, err))
			}
		}
		if _, err := e.store.AddOrUpdate(id, snap.Vectors[i], meta); err != nil {
			return wrapErr("Open", CodeCorruptSnapshot, err)
		}
		e.setAttrsFromMeta(id, meta)
	}

	if err := e.importAnnState(snap.AnnState); err != nil {
		return wrapErr("Open", CodeCorruptSnapshot, err)
	}
	return nil
}

func (e *Engine) importAnnState(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	switch e.strategy {
	case StrategyHNSW:
		var st index.HNSWState
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		e.ann.(*index.HNSW).ImportState(st)
	case StrategyIVF:
		var st index.IVFState
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		e.ann.(*index.IVF).ImportState(st)
	}
	return nil
}

func (e *Engine) exportAnnState() ([]byte, error) {
	switch e.strategy {
	case StrategyHNSW:
		return json.Marshal(e.ann.(*index.HNSW).ExportState())
	case StrategyIVF:
		return json.Marshal(e.ann.(*index.IVF).ExportState())
	default:
		return nil, nil
	}
}

// replayWal applies every frame currently recorded in the WAL. Persist
// always clears the WAL key after a successful checkpoint, so "every
// frame in the key" and "every frame since the last checkpoint" are
// the same set by construction — there is no need to track or match
// explicit sequence numbers against the snapshot's checkpoint id.
func (e *Engine) replayWal(ctx context.Context) error {
	raw, err := e.dataAdapter.Read(ctx, e.walKey())
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr("Open", err)
	}

	res := wal.Replay(raw)
	for _, rec := range res.Records {
		switch rec.Opcode {
		case wal.OpUpsert:
			var meta any
			if len(rec.MetaJSON) > 0 {
				if err := json.Unmarshal(rec.MetaJSON, &meta); err != nil {
					return wrapErr("Open", CodeCorruptWal, err)
				}
			}
			if _, err := e.store.AddOrUpdate(rec.ID, rec.Vector, meta); err != nil {
				return wrapErr("Open", CodeCorruptWal, err)
			}
			if err := e.ann.Add(rec.ID); err != nil {
				return wrapErr("Open", CodeCorruptWal, err)
			}
			e.setAttrsFromMeta(rec.ID, meta)
		case wal.OpDelete:
			e.store.RemoveByID(rec.ID)
			_ = e.ann.Delete(rec.ID)
			e.attrs.RemoveID(rec.ID)
		case wal.OpCheckpoint:
			e.lastCheckpointID = rec.SnapshotID
		}
	}

	if res.Truncated {
		if err := e.dataAdapter.Write(ctx, e.walKey(), raw[:res.ValidLen]); err != nil {
			return storageErr("Open", err)
		}
		e.logger.Warn("wal crash tail truncated", "name", e.name, "validLen", res.ValidLen, "totalLen", len(raw))
	}
	return nil
}

// Add inserts id as a new record or overwrites its vector and meta if
// already present. The write is applied to the store and ANN index,
// then durably appended to the WAL; if the append fails, the prior
// in-memory state is restored so Add is all-or-nothing from the
// caller's perspective.
func (e *Engine) Add(ctx context.Context, id uint32, vec []float32, meta any) (store.Outcome, error) {
	if len(vec) != e.dim {
		return 0, invalidArg("Add", fmt.Errorf("vector has dim %d, want %d", len(vec), e.dim))
	}
	if err := encoding.ValidateVector(vec); err != nil {
		return 0, invalidArg("Add", err)
	}

	var outcome store.Outcome
	err := e.lock.RunExclusive(ctx, func() error {
		prevView, prevMeta, existed := e.store.Get(id)
		var prevVec []float32
		if existed {
			prevVec = append([]float32(nil), prevView...)
		}

		var err error
		outcome, err = e.store.AddOrUpdate(id, vec, meta)
		if err != nil {
			return invalidArg("Add", err)
		}

		if err := e.ann.Add(id); err != nil {
			e.rollbackAdd(id, existed, prevVec, prevMeta)
			return wrapErr("Add", CodeInvalidArgument, err)
		}
		e.setAttrsFromMeta(id, meta)

		metaJSON, err := snapshot.JSONMeta(meta)
		if err != nil {
			e.rollbackAdd(id, existed, prevVec, prevMeta)
			return invalidArg("Add", err)
		}
		if err := e.dataAdapter.Append(ctx, e.walKey(), wal.EncodeUpsert(id, vec, metaJSON)); err != nil {
			e.rollbackAdd(id, existed, prevVec, prevMeta)
			return storageErr("Add", err)
		}
		return nil
	})
	return outcome, err
}

func (e *Engine) rollbackAdd(id uint32, existed bool, prevVec []float32, prevMeta any) {
	if !existed {
		e.store.RemoveByID(id)
		_ = e.ann.Delete(id)
		e.attrs.RemoveID(id)
		return
	}
	if _, err := e.store.AddOrUpdate(id, prevVec, prevMeta); err != nil {
		e.logger.Error("rollback failed to restore previous record", "id", id, "err", err)
		return
	}
	e.setAttrsFromMeta(id, prevMeta)
}

// Get returns a defensive copy of id's stored vector and its meta.
func (e *Engine) Get(id uint32) (vector []float32, meta any, found bool) {
	vec, m, ok := e.store.Get(id)
	if !ok {
		return nil, nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, m, true
}

// Delete removes id from the store, ANN index, and attribute index,
// then durably appends a delete frame to the WAL. Deleting an absent
// id is a no-op, not an error. If the WAL append fails, the removed
// record is restored so the engine's visible state doesn't silently
// diverge from its durable log.
func (e *Engine) Delete(ctx context.Context, id uint32) error {
	return e.lock.RunExclusive(ctx, func() error {
		removed, existed := e.store.RemoveByID(id)
		if !existed {
			return nil
		}
		if err := e.ann.Delete(id); err != nil {
			e.logger.Error("ann delete failed", "id", id, "err", err)
		}
		e.attrs.RemoveID(id)

		if err := e.dataAdapter.Append(ctx, e.walKey(), wal.EncodeDelete(id)); err != nil {
			if _, rerr := e.store.AddOrUpdate(id, removed.Vector, removed.Meta); rerr != nil {
				e.logger.Error("rollback failed to restore deleted record", "id", id, "err", rerr)
			} else if aerr := e.ann.Add(id); aerr != nil {
				e.logger.Error("rollback failed to re-add to ann index", "id", id, "err", aerr)
			}
			e.setAttrsFromMeta(id, removed.Meta)
			return storageErr("Delete", err)
		}
		return nil
	})
}

// FindMany ranks the store's vectors against query, restricted to ids
// that satisfy both opts.Expr (evaluated against the attribute index)
// and opts.Predicate (evaluated against live metadata), if set.
func (e *Engine) FindMany(query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != e.dim {
		return nil, invalidArg("FindMany", fmt.Errorf("query has dim %d, want %d", len(query), e.dim))
	}
	k := opts.K
	if k <= 0 {
		k = defaultK
	}

	var universe attr.IDSet
	if opts.Expr != nil {
		ids := e.store.IDs()
		universe = make(attr.IDSet, len(ids))
		for _, id := range ids {
			universe[id] = struct{}{}
		}
	}
	filtered := filter.Eval(opts.Expr, e.attrs, universe)

	allowed := func(id uint32) bool {
		if !filtered.Universal {
			if _, ok := filtered.IDs[id]; !ok {
				return false
			}
		}
		if opts.Predicate != nil {
			_, meta, _ := e.store.Get(id)
			if !opts.Predicate(id, meta) {
				return false
			}
		}
		return true
	}

	results, err := e.ann.Search(query, k, allowed)
	if err != nil {
		return nil, wrapErr("FindMany", CodeInvalidArgument, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		_, meta, _ := e.store.Get(r.ID)
		out[i] = SearchResult{ID: r.ID, Score: r.Score, Meta: meta}
	}
	return out, nil
}

// Persist writes a full snapshot of the current store, ANN, and
// attribute state to the index adapter, then records a checkpoint
// frame and clears the WAL. A crash between the snapshot write and
// the WAL clear is safe: on the next Open, replaying the still-intact
// WAL on top of the just-written snapshot reproduces the same state,
// at worst re-applying already-durable mutations.
func (e *Engine) Persist(ctx context.Context) error {
	return e.lock.RunExclusive(ctx, func() error {
		metricCode, err := encodeMetric(e.metric)
		if err != nil {
			return invalidArg("Persist", err)
		}
		strategyCode, err := encodeStrategy(e.strategy)
		if err != nil {
			return invalidArg("Persist", err)
		}

		annState, err := e.exportAnnState()
		if err != nil {
			return invalidArg("Persist", err)
		}
		attrsState, err := json.Marshal(e.attrs.Export())
		if err != nil {
			return invalidArg("Persist", err)
		}

		snapBytes, err := snapshot.Encode(e.store, metricCode, strategyCode, annState, attrsState, snapshot.JSONMeta)
		if err != nil {
			return wrapErr("Persist", CodeInvalidArgument, err)
		}
		if err := e.indexAdapter.AtomicWrite(ctx, e.snapKey(), snapBytes); err != nil {
			return storageErr("Persist", err)
		}

		e.lastCheckpointID++
		if err := e.dataAdapter.Append(ctx, e.walKey(), wal.EncodeCheckpoint(e.lastCheckpointID)); err != nil {
			return storageErr("Persist", err)
		}
		if err := e.dataAdapter.Write(ctx, e.walKey(), nil); err != nil {
			return storageErr("Persist", err)
		}

		e.logger.Info("persisted snapshot", "name", e.name, "count", e.store.Len(), "checkpoint", e.lastCheckpointID)
		return nil
	})
}

// FlushWal is a no-op: every Append already durably records its frame
// before returning, so there is nothing buffered to flush.
func (e *Engine) FlushWal(ctx context.Context) error { return nil }

// Rebuild discards and reconstructs the ANN index's auxiliary state
// from the current store contents (e.g. IVF re-deriving its posting
// lists from its current centroids).
func (e *Engine) Rebuild(ctx context.Context) error {
	return e.lock.RunExclusive(ctx, func() error {
		if err := e.ann.Rebuild(); err != nil {
			return wrapErr("Rebuild", CodeInvalidArgument, err)
		}
		return nil
	})
}

// Stats reports point-in-time engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Name:       e.name,
		InstanceID: e.instanceID,
		Count:      e.store.Len(),
		Dim:        e.dim,
		Capacity:   e.store.Capacity(),
		Metric:     e.metric,
		Strategy:   e.strategy,
	}
}

// Close marks the engine closed. Subsequent calls are still safe to
// invoke but are not guaranteed to observe a consistent view; callers
// should Persist before Close if durability of in-flight writes matters.
func (e *Engine) Close() error {
	e.closed = true
	return nil
}
