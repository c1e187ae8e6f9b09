package ppg

import "time"

// TrainingState is the mutable state of a Policy which is passed
// explicitly into the components updated on each batch
type TrainingState struct {
	Gamma   float64
	LR      float64
	EntCoef float64

	// LastDones holds the done flags of the last step of the previous
	// batch for each environment, used to reset reward normalization
	// across batch boundaries
	LastDones []bool

	// LastValues are the bootstrap values of the last batch, used to
	// recompute returns of stored experience
	LastValues []float32

	Batches  int
	BatchEnd time.Time
}

// Stats summarizes the learning on a batch
type Stats struct {
	// Stopped is true if the time or step budget was exhausted. The
	// best model has been restored, and no learning took place.
	Stopped bool

	Retuned bool

	Timesteps  int
	Episodes   int
	MeanReturn float64 // NaN if no episodes were completed
	BestReward float64

	Gamma   float64
	LR      float64
	EntCoef float64

	Losses Losses
}
