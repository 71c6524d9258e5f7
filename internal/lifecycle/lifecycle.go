// Package lifecycle implements the C10 Lifecycle Scheduler: periodic STM
// expiry, LTM decay, STM->LTM promotion, and STM LRU-cap eviction, plus an
// on-demand consolidate variant — grounded on original_source's
// run_maintenance/advanced_consolidate in server/src/main.rs.
//
// run_maintenance evaluates its promotion predicate twice per STM record per
// tick (once inside the STM branch, once again unconditionally afterward),
// which can append a duplicate consolidation_log entry and can even
// re-"promote" a record that decay just touched. This implementation
// evaluates the predicate exactly once per memory per tick, per spec.md §9
// Redesign Flag (a).
package lifecycle

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"memorized/internal/kv"
	"memorized/internal/memory"
)

// Clock supplies the current time in epoch milliseconds.
type Clock func() int64

// CachePruner is implemented by internal/fusion.Engine; kept as a narrow
// interface here so lifecycle does not need to import fusion.
type CachePruner interface {
	Prune(now int64)
}

// Options configures Scheduler construction.
type Options struct {
	Now Clock

	Interval             time.Duration // default 60s
	LTMDecayPerClean     float64       // default 0.99
	PromoteImportanceMin float64       // default 1.5
	PromoteAccessMin     int64         // default 3
	STMMaxItems          int           // 0 disables the cap

	CachePruner CachePruner
}

// Scheduler runs the periodic maintenance tick and the on-demand consolidate
// variant over the memories tree.
type Scheduler struct {
	store            *kv.Store
	memories         *kv.Tree
	consolidationLog *kv.Tree
	now              Clock

	interval      time.Duration
	decay         float64
	promoteImpMin float64
	promoteAccMin int64
	stmMaxItems   int

	cachePruner CachePruner
}

// New wires a Scheduler to store's memories and consolidation_log trees.
func New(store *kv.Store, opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = defaultClock
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	decay := opts.LTMDecayPerClean
	if decay == 0 {
		decay = 0.99
	}
	impMin := opts.PromoteImportanceMin
	if impMin == 0 {
		impMin = 1.5
	}
	accMin := opts.PromoteAccessMin
	if accMin == 0 {
		accMin = 3
	}
	return &Scheduler{
		store:            store,
		memories:         store.Tree("memories"),
		consolidationLog: store.Tree("consolidation_log"),
		now:              now,
		interval:         interval,
		decay:            decay,
		promoteImpMin:    impMin,
		promoteAccMin:    accMin,
		stmMaxItems:      opts.STMMaxItems,
		cachePruner:      opts.CachePruner,
	}
}

// TickResult reports what one maintenance pass did.
type TickResult struct {
	Promoted int
	Expired  int
	Decayed  int
	Evicted  int
}

// Run executes Tick on Interval until ctx is cancelled (graceful shutdown
// per spec.md §5).
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(); err != nil {
				return err
			}
			if s.cachePruner != nil {
				s.cachePruner.Prune(s.now())
			}
		}
	}
}

// Tick runs one maintenance pass: STM expiry/promotion (evaluated exactly
// once per record), LTM decay, and STM LRU-cap enforcement, then flushes the
// store.
func (s *Scheduler) Tick() (*TickResult, error) {
	now := s.now()
	result := &TickResult{}

	entries, err := s.memories.Iterate()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		var rec memory.Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue // CorruptionTolerable: skip malformed records
		}

		switch rec.Layer {
		case memory.LayerSTM:
			promote, reason := s.shouldPromote(rec)
			if promote {
				rec.Layer = memory.LayerLTM
				promotedAt := now
				rec.PromotedAt = &promotedAt
				if err := s.put(&rec); err != nil {
					return nil, err
				}
				if err := s.logConsolidation(now, rec.ID, reason); err != nil {
					return nil, err
				}
				result.Promoted++
				continue
			}
			if rec.ExpiresAt != nil && *rec.ExpiresAt <= now {
				if err := s.memories.Remove([]byte(rec.ID)); err != nil {
					return nil, err
				}
				result.Expired++
			}
		case memory.LayerLTM:
			rec.Importance *= s.decay
			if err := s.put(&rec); err != nil {
				return nil, err
			}
			result.Decayed++
		}
	}

	if s.stmMaxItems > 0 {
		evicted, err := s.enforceSTMCap(now)
		if err != nil {
			return nil, err
		}
		result.Evicted = evicted
	}

	return result, s.store.Flush()
}

// shouldPromote evaluates the STM->LTM promotion predicate from spec.md
// §4.10 exactly once and reports the reason (importance takes precedence
// when both thresholds are met, matching original_source's tie-break).
func (s *Scheduler) shouldPromote(rec memory.Record) (bool, string) {
	if rec.Importance >= s.promoteImpMin {
		return true, "importance"
	}
	if rec.AccessCount >= s.promoteAccMin {
		return true, "access"
	}
	return false, ""
}

func (s *Scheduler) logConsolidation(now int64, id, reason string) error {
	key := strconv.FormatInt(now, 10) + ":" + id
	val, err := json.Marshal(map[string]any{
		"id": id, "from": memory.LayerSTM, "to": memory.LayerLTM,
		"reason": reason, "ts": now,
	})
	if err != nil {
		return err
	}
	return s.consolidationLog.Put([]byte(key), val)
}

// enforceSTMCap drops the oldest STM records (by last_access_ts, falling
// back to created_at) beyond stmMaxItems.
func (s *Scheduler) enforceSTMCap(now int64) (int, error) {
	entries, err := s.memories.Iterate()
	if err != nil {
		return 0, err
	}
	type stmEntry struct {
		id string
		ts int64
	}
	var stm []stmEntry
	for _, e := range entries {
		var rec memory.Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		if rec.Layer != memory.LayerSTM {
			continue
		}
		ts := rec.LastAccessTS
		if ts == 0 {
			ts = rec.CreatedAt
		}
		stm = append(stm, stmEntry{id: rec.ID, ts: ts})
	}
	if len(stm) <= s.stmMaxItems {
		return 0, nil
	}
	sort.Slice(stm, func(i, j int) bool { return stm[i].ts < stm[j].ts })
	toRemove := stm[:len(stm)-s.stmMaxItems]
	for _, e := range toRemove {
		if err := s.memories.Remove([]byte(e.id)); err != nil {
			return 0, err
		}
	}
	return len(toRemove), nil
}

func (s *Scheduler) put(rec *memory.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.memories.Put([]byte(rec.ID), val)
}

// ConsolidateOptions configures the on-demand consolidate variant.
type ConsolidateOptions struct {
	Limit  int // default 10
	DryRun bool
}

// ConsolidateResult reports the on-demand consolidate outcome.
type ConsolidateResult struct {
	Promoted   int
	Candidates int
}

// Consolidate processes up to opts.Limit STM records meeting the promotion
// predicate, promoting them unless opts.DryRun, per spec.md §4.10's
// "explicit consolidate" operation.
func (s *Scheduler) Consolidate(opts ConsolidateOptions) (*ConsolidateResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	now := s.now()
	result := &ConsolidateResult{}

	entries, err := s.memories.Iterate()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if result.Promoted >= limit {
			break
		}
		var rec memory.Record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		if rec.Layer != memory.LayerSTM {
			continue
		}
		promote, reason := s.shouldPromote(rec)
		if !promote {
			continue
		}
		result.Candidates++
		if opts.DryRun {
			continue
		}
		rec.Layer = memory.LayerLTM
		promotedAt := now
		rec.PromotedAt = &promotedAt
		if err := s.put(&rec); err != nil {
			return nil, err
		}
		if err := s.logConsolidation(now, rec.ID, reason); err != nil {
			return nil, err
		}
		result.Promoted++
	}
	return result, s.store.Flush()
}

func defaultClock() int64 {
	return time.Now().UnixMilli()
}
