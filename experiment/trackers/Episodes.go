package trackers

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
)

// Episodes tracks the return and length of every completed episode in
// an experiment and saves them to disk with gob.
//
// Only completed episodes are tracked. If the last episode in an
// experiment does not finish, it is not saved.
type Episodes struct {
	Returns []float64
	Lengths []int
}

// Track records a completed episode
func (e *Episodes) Track(ret float64, length int) {
	e.Returns = append(e.Returns, ret)
	e.Lengths = append(e.Lengths, length)
}

// Len returns the number of episodes tracked
func (e *Episodes) Len() int {
	return len(e.Returns)
}

// Save saves the tracked episodes to filename
func (e *Episodes) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "could not open save file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(e); err != nil {
		return errors.Wrapf(err, "could not encode episodes to %v", filename)
	}
	return nil
}

// LoadEpisodes loads the episodes saved in filename
func LoadEpisodes(filename string) (*Episodes, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "could not open data file")
	}
	defer file.Close()

	var e Episodes
	if err := gob.NewDecoder(file).Decode(&e); err != nil {
		return nil, errors.Wrapf(err, "could not decode episodes from %v",
			filename)
	}
	return &e, nil
}
