// Package doublearray implements the Doubling Array: the leveled
// collection of component trees per spec.md §4.6, its level-0 seal/promote
// lifecycle, its background pairwise-merge scheduler, and the per-version
// read router.
package doublearray

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/component"
	"github.com/kvladder/ladderstore/config"
	"github.com/kvladder/ladderstore/errs"
	"github.com/kvladder/ladderstore/logging"
	"github.com/kvladder/ladderstore/merge"
	"github.com/kvladder/ladderstore/metrics"
	"github.com/kvladder/ladderstore/version"
)

// Versioner is the slice of version.Index the doubling array drives
// directly: the ancestry test every merge needs, plus RootUpdate, which
// must be called every time this DA's level-0 dynamic CT is (re)created
// so the DA's root_version always routes to the live CT — mirroring the
// original source's castle_da_rwct_make, which calls
// castle_version_root_update(da->root_version, ct->seq, cdb) at exactly
// those two points.
type Versioner interface {
	merge.AncestryTester
	RootUpdate(v version.ID, rootBlock block.Ptr, size uint64) error
}

// DA is one doubling array: a process-wide service over a single (da_id,
// btree_type) pair, owning its own lock per spec.md §9's "each service
// owns its lock" guidance.
type DA struct {
	mu  sync.Mutex
	id  uint32
	t   btreetype.Type
	vi  Versioner
	cfg *config.Config
	log *logging.Logger

	store *component.NodeStore

	// rootVersion is the version.ID this DA's level-0 dynamic CT is
	// published under in the Version Index (the DA's DADescriptor.RootVersion).
	rootVersion version.ID

	nextSeq uint64

	// levels[0] always holds exactly one dynamic CT (the level-0
	// invariant); levels[L>0] hold zero or more immutable CTs.
	levels    [][]*component.Tree
	levelBusy []bool

	mergeSem chan struct{}
}

// New seeds a fresh doubling array with its required level-0 dynamic CT
// and publishes it as rootVersion's routing root.
func New(id uint32, t btreetype.Type, store *component.NodeStore, vi Versioner, rootVersion version.ID, cfg *config.Config, log *logging.Logger) (*DA, error) {
	da := &DA{
		id:          id,
		t:           t,
		vi:          vi,
		cfg:         cfg,
		log:         log,
		store:       store,
		rootVersion: rootVersion,
		levels:      make([][]*component.Tree, 1, cfg.MaxDALevel+1),
		levelBusy:   make([]bool, 1, cfg.MaxDALevel+1),
		mergeSem:    make(chan struct{}, cfg.MaxConcurrentMerges),
	}

	seed, err := component.NewDynamic(da.allocSeq(), id, t, store)
	if err != nil {
		return nil, err
	}
	da.levels[0] = []*component.Tree{seed}
	metrics.ComponentTreesPerLevel.WithLabelValues(levelLabel(0)).Set(1)
	if err := da.vi.RootUpdate(rootVersion, seed.Root(), seed.ItemCount()); err != nil {
		return nil, err
	}
	return da, nil
}

func (da *DA) allocSeq() uint64 {
	da.nextSeq++
	return da.nextSeq
}

func levelLabel(level int) string { return fmt.Sprintf("%d", level) }

// Insert writes into the level-0 dynamic CT, sealing and promoting it to
// level 1 once its item_count crosses config.Config.SealThreshold (spec.md
// §4.6).
func (da *DA) Insert(key []byte, v version.ID, valueRef []byte) error {
	da.mu.Lock()
	l0 := da.levels[0][0]
	da.mu.Unlock()

	if err := l0.Insert(key, v, valueRef); err != nil {
		return err
	}

	da.mu.Lock()
	defer da.mu.Unlock()
	if l0.ItemCount() >= uint64(da.cfg.SealThreshold) {
		return da.sealLevel0Locked()
	}
	return nil
}

// sealLevel0Locked moves the current level-0 CT to level 1 and installs a
// fresh dynamic CT at level 0, preserving the level-0 invariant. Caller
// must hold da.mu.
func (da *DA) sealLevel0Locked() error {
	sealed := da.levels[0][0]

	fresh, err := component.NewDynamic(da.allocSeq(), da.id, da.t, da.store)
	if err != nil {
		return err
	}
	da.levels[0][0] = fresh
	if err := da.vi.RootUpdate(da.rootVersion, fresh.Root(), fresh.ItemCount()); err != nil {
		return err
	}

	da.ensureLevelLocked(1)
	da.levels[1] = append(da.levels[1], sealed)

	metrics.ComponentTreesPerLevel.WithLabelValues(levelLabel(0)).Set(1)
	metrics.ComponentTreesPerLevel.WithLabelValues(levelLabel(1)).Set(float64(len(da.levels[1])))
	da.log.Info("sealed level-0 ct#%d (%s items) to level 1", sealed.Seq, humanize.Comma(int64(sealed.ItemCount())))
	return nil
}

// ensureLevelLocked grows levels/levelBusy so index level is addressable.
// Caller must hold da.mu.
func (da *DA) ensureLevelLocked(level int) {
	for len(da.levels) <= level {
		da.levels = append(da.levels, nil)
		da.levelBusy = append(da.levelBusy, false)
	}
}

// mergeJob is one pairwise merge the scheduler has committed to run.
type mergeJob struct {
	level int
	a, b  *component.Tree
}

// RunMergeScheduler performs one scheduling pass: for every level with two
// or more resident CTs and no merge already in flight there, it picks the
// two oldest (smallest seq) CTs and merges them, bounded by
// config.Config.MaxConcurrentMerges across the whole DA (spec.md §4.6).
func (da *DA) RunMergeScheduler(ctx context.Context) error {
	jobs := da.pickMergeJobs()
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			select {
			case da.mergeSem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-da.mergeSem }()
			return da.runMerge(job.level, job.a, job.b)
		})
	}
	return g.Wait()
}

func (da *DA) pickMergeJobs() []mergeJob {
	da.mu.Lock()
	defer da.mu.Unlock()

	var jobs []mergeJob
	for level := 1; level < len(da.levels); level++ {
		if da.levelBusy[level] || len(da.levels[level]) < 2 {
			continue
		}
		trees := append([]*component.Tree(nil), da.levels[level]...)
		sort.Slice(trees, func(i, j int) bool { return trees[i].Seq < trees[j].Seq })
		da.levelBusy[level] = true
		jobs = append(jobs, mergeJob{level: level, a: trees[0], b: trees[1]})
	}
	return jobs
}

// runMerge merges a and b from level into a new CT at level+1, retiring
// the inputs on success.
func (da *DA) runMerge(level int, a, b *component.Tree) error {
	defer func() {
		da.mu.Lock()
		da.levelBusy[level] = false
		da.mu.Unlock()
	}()

	metrics.MergesStarted.Inc()
	start := time.Now()

	iterA, err := da.openIterator(a)
	if err != nil {
		metrics.MergesAborted.Inc()
		return err
	}
	iterB, err := da.openIterator(b)
	if err != nil {
		iterA.Close()
		metrics.MergesAborted.Inc()
		return err
	}

	merged, err := merge.NewMerged(da.t, da.vi, []merge.Iterator{iterA, iterB})
	if err != nil {
		metrics.MergesAborted.Inc()
		return err
	}

	eng := merge.NewEngine(da.t, da.vi, da.store, int(da.cfg.MaxBTreeDepth))

	da.mu.Lock()
	seq := da.allocSeq()
	da.mu.Unlock()

	desc, err := eng.Run(merged, seq, da.id, uint32(level+1))
	if err != nil {
		metrics.MergesAborted.Inc()
		return err
	}
	result := component.Open(*desc, da.t, da.store)

	da.mu.Lock()
	da.ensureLevelLocked(level + 1)
	da.levels[level+1] = append(da.levels[level+1], result)
	da.levels[level] = removeTrees(da.levels[level], a, b)
	metrics.ComponentTreesPerLevel.WithLabelValues(levelLabel(level)).Set(float64(len(da.levels[level])))
	metrics.ComponentTreesPerLevel.WithLabelValues(levelLabel(level + 1)).Set(float64(len(da.levels[level+1])))
	da.mu.Unlock()

	da.releaseLeafChain(a)
	da.releaseLeafChain(b)

	metrics.MergesCompleted.Inc()
	metrics.MergeDuration.Observe(time.Since(start).Seconds())
	da.log.Info("merged level %d: ct#%d + ct#%d -> ct#%d at level %d (%s items, %s)",
		level, a.Seq, b.Seq, result.Seq, level+1,
		humanize.Comma(int64(result.ItemCount())), humanize.Bytes(uint64(result.NodeCount())*uint64(da.cfg.NodeSizeBlocks)*uint64(da.cfg.BlockSizeBytes)))
	return nil
}

func removeTrees(from []*component.Tree, drop ...*component.Tree) []*component.Tree {
	kept := from[:0]
	for _, t := range from {
		keep := true
		for _, d := range drop {
			if t == d {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, t)
		}
	}
	return kept
}

// openIterator wraps a resident CT as a merge.Iterator: a dynamic CT sorts
// on read via the Modlist Iterator; an already-sorted immutable CT drains
// directly.
func (da *DA) openIterator(t *component.Tree) (merge.Iterator, error) {
	if t.Dynamic {
		return merge.NewModlist(t, da.t, da.vi)
	}
	return merge.NewDrainIterator(t)
}

// releaseLeafChain returns a retired CT's leaf blocks to free space. Its
// internal (non-leaf) nodes are not released, and the free-space
// allocator has no pass that reclaims them.
func (da *DA) releaseLeafChain(t *component.Tree) {
	ptr := t.FirstNode
	for ptr.IsValid() {
		node, err := da.store.Get(da.t, ptr)
		if err != nil {
			return
		}
		next := node.Next
		_ = da.store.Free.Release(ptr)
		ptr = next
	}
}

// Find is the read router of spec.md §4.6: level 0 upward, newest CT
// first within a level, first non-absent answer wins.
func (da *DA) Find(key []byte, v version.ID) ([]byte, error) {
	da.mu.Lock()
	levels := make([][]*component.Tree, len(da.levels))
	for i, l := range da.levels {
		levels[i] = append([]*component.Tree(nil), l...)
	}
	da.mu.Unlock()

	for _, level := range levels {
		sort.Slice(level, func(i, j int) bool { return level[i].Seq > level[j].Seq })
		for _, t := range level {
			val, err := t.Find(key, v, da.vi)
			if err == nil {
				return val, nil
			}
			if !errors.Is(err, errs.ErrAbsent) {
				return nil, err
			}
		}
	}
	return nil, errs.ErrAbsent
}
