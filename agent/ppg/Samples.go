package ppg

import "fmt"

// EpisodeSummary summarizes a completed episode
type EpisodeSummary struct {
	R float64 // Return
	L int     // Length
}

// Info is the per-transition information returned by an environment.
// Episode is non-nil only on the last transition of an episode.
type Info struct {
	Episode *EpisodeSummary
}

// Samples is a batch of rollout transitions from NumEnvs parallel
// environments over NumSteps steps. All arrays are laid out env-major:
// transition (env, step) is at index env*NumSteps + step.
type Samples struct {
	Obs        []uint8 // Transitions * observation size
	NewObs     []uint8 // Transitions * observation size
	Actions    []int
	Rewards    []float32
	Dones      []bool
	Values     []float32
	ActionLogp []float32
	Infos      []Info
}

// Len returns the number of transitions in the batch
func (s *Samples) Len() int {
	return len(s.Dones)
}

// Validate returns an error if the arrays of the batch do not all hold
// n transitions with observations of obsSize elements
func (s *Samples) Validate(n, obsSize int) error {
	lengths := map[string]int{
		"actions":     len(s.Actions),
		"rewards":     len(s.Rewards),
		"dones":       len(s.Dones),
		"values":      len(s.Values),
		"action_logp": len(s.ActionLogp),
		"infos":       len(s.Infos),
	}
	for name, length := range lengths {
		if length != n {
			return fmt.Errorf("validate: illegal length of %v \n\twant(%v)"+
				"\n\thave(%v)", name, n, length)
		}
	}

	if len(s.Obs) != n*obsSize {
		return fmt.Errorf("validate: illegal length of obs \n\twant(%v)"+
			"\n\thave(%v)", n*obsSize, len(s.Obs))
	}
	if len(s.NewObs) != n*obsSize {
		return fmt.Errorf("validate: illegal length of new_obs \n\twant(%v)"+
			"\n\thave(%v)", n*obsSize, len(s.NewObs))
	}
	return nil
}

// episodes returns the returns and lengths of the episodes completed
// in the batch
func (s *Samples) episodes() (returns []float64, lengths []int) {
	for _, info := range s.Infos {
		if info.Episode != nil {
			returns = append(returns, info.Episode.R)
			lengths = append(lengths, info.Episode.L)
		}
	}
	return returns, lengths
}
