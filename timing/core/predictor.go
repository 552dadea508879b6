package core

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// BHTSize is the number of entries in the Branch History Table.
	// Must be a power of 2. Default is 1024.
	BHTSize uint32 `toml:"bht_size"`
	// BTBSize is the number of entries in the Branch Target Buffer.
	// Must be a power of 2. Default is 256.
	BTBSize uint32 `toml:"btb_size"`
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		BHTSize: 1024,
		BTBSize: 256,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the total number of branch predictions made.
	Predictions uint64
	// Correct is the number of correct direction predictions.
	Correct uint64
	// Mispredictions is the number of incorrect direction predictions.
	Mispredictions uint64
	// BTBHits is the number of BTB hits.
	BTBHits uint64
	// BTBMisses is the number of BTB misses.
	BTBMisses uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s BranchPredictorStats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted to be taken.
	Taken bool
	// Target is the predicted target address (if known from BTB).
	Target uint64
	// TargetKnown indicates whether the target address is known.
	TargetKnown bool
}

// BranchPredictor is a bimodal predictor of 2-bit saturating counters with
// a direct-mapped Branch Target Buffer. Both tables are indexed by
// instruction slot, so the low three address bits are dropped.
type BranchPredictor struct {
	// States: 0=Strongly Not Taken, 1=Weakly Not Taken,
	//         2=Weakly Taken, 3=Strongly Taken
	bht []uint8

	btb      []btbEntry
	btbValid []bool

	bhtSize uint32
	btbSize uint32

	stats BranchPredictorStats
}

type btbEntry struct {
	pc     uint64
	target uint64
}

// NewBranchPredictor creates a new branch predictor with the given configuration.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	bhtSize := config.BHTSize
	btbSize := config.BTBSize

	if bhtSize == 0 {
		bhtSize = 1024
	}
	if btbSize == 0 {
		btbSize = 256
	}

	bp := &BranchPredictor{
		bht:      make([]uint8, bhtSize),
		btb:      make([]btbEntry, btbSize),
		btbValid: make([]bool, btbSize),
		bhtSize:  bhtSize,
		btbSize:  btbSize,
	}
	bp.Reset()

	return bp
}

func (bp *BranchPredictor) bhtIndex(pc uint64) uint32 {
	return uint32((pc >> 3) & uint64(bp.bhtSize-1))
}

func (bp *BranchPredictor) btbIndex(pc uint64) uint32 {
	return uint32((pc >> 3) & uint64(bp.btbSize-1))
}

// Predict makes a branch prediction for the given PC.
func (bp *BranchPredictor) Predict(pc uint64) Prediction {
	pred := Prediction{
		Taken: bp.bht[bp.bhtIndex(pc)] >= 2,
	}

	btbIdx := bp.btbIndex(pc)
	if bp.btbValid[btbIdx] && bp.btb[btbIdx].pc == pc {
		pred.Target = bp.btb[btbIdx].target
		pred.TargetKnown = true
		bp.stats.BTBHits++
	} else {
		bp.stats.BTBMisses++
	}

	bp.stats.Predictions++
	return pred
}

// Update trains the predictor with the actual branch outcome.
func (bp *BranchPredictor) Update(pc uint64, taken bool, target uint64) {
	bhtIdx := bp.bhtIndex(pc)
	counter := bp.bht[bhtIdx]

	if (counter >= 2) == taken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}

	switch {
	case taken && counter < 3:
		bp.bht[bhtIdx] = counter + 1
	case !taken && counter > 0:
		bp.bht[bhtIdx] = counter - 1
	}

	if taken {
		btbIdx := bp.btbIndex(pc)
		bp.btb[btbIdx] = btbEntry{pc: pc, target: target}
		bp.btbValid[btbIdx] = true
	}
}

// Stats returns the branch predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset sets every counter to weakly taken, clears the BTB and the
// statistics.
func (bp *BranchPredictor) Reset() {
	for i := range bp.bht {
		bp.bht[i] = 2
	}
	for i := range bp.btbValid {
		bp.btbValid[i] = false
	}
	bp.stats = BranchPredictorStats{}
}
