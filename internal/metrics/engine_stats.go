package metrics

// SetLSMStats populates the LSM tagged union field (spec §4.9: compactions,
// flushes, levels, memtable size, sstable count), sourced from
// lsm.Tree.Stats().
func (r *Registry) SetLSMStats(engineName string, flushes, compactions int64, populatedLevels int, memtableBytes int64, sstableCount int) {
	r.lsmFlushes.WithLabelValues(engineName).Set(float64(flushes))
	r.lsmCompactions.WithLabelValues(engineName).Set(float64(compactions))
	r.lsmLevels.WithLabelValues(engineName).Set(float64(populatedLevels))
	r.lsmMemtableBytes.WithLabelValues(engineName).Set(float64(memtableBytes))
	r.lsmSSTableCount.WithLabelValues(engineName).Set(float64(sstableCount))
}

// SetBTreeStats populates the B+Tree tagged union field (splits, merges,
// height), sourced from btreeengine.Engine.
func (r *Registry) SetBTreeStats(engineName string, splits, merges int64, height int) {
	r.btreeSplits.WithLabelValues(engineName).Set(float64(splits))
	r.btreeMerges.WithLabelValues(engineName).Set(float64(merges))
	r.btreeHeight.WithLabelValues(engineName).Set(float64(height))
}

// SetHashStats populates the chained hash table tagged union field
// (collisions, load factor, rehashes), sourced from hashengine.Engine.
func (r *Registry) SetHashStats(engineName string, collisions int64, loadFactor float64, rehashes int64) {
	r.hashCollisions.WithLabelValues(engineName).Set(float64(collisions))
	r.hashLoadFactor.WithLabelValues(engineName).Set(loadFactor)
	r.hashRehashes.WithLabelValues(engineName).Set(float64(rehashes))
}

// SetRBTreeStats populates the red-black tree tagged union field
// (rotations, rebalances, depth), sourced from rbtreeengine.Engine.
func (r *Registry) SetRBTreeStats(engineName string, rotations, rebalances int64, depth int) {
	r.rbRotations.WithLabelValues(engineName).Set(float64(rotations))
	r.rbRebalances.WithLabelValues(engineName).Set(float64(rebalances))
	r.rbDepth.WithLabelValues(engineName).Set(float64(depth))
}

// SetArrayStats populates the array backend tagged union field (resizes,
// capacity, utilization), sourced from arrayengine.Engine.
func (r *Registry) SetArrayStats(engineName string, resizes, capacity int64, utilization float64) {
	r.arrResizes.WithLabelValues(engineName).Set(float64(resizes))
	r.arrCapacity.WithLabelValues(engineName).Set(float64(capacity))
	r.arrUtilization.WithLabelValues(engineName).Set(utilization)
}
