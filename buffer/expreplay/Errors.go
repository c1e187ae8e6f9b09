package expreplay

import "errors"

// ReplayError implements errors unique to a replay buffer.
type ReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ReplayError) Unwrap() error {
	return e.Err
}

var errBufferFull = errors.New("buffer at maximum capacity")

var errBatchShape = errors.New("batch does not match buffer geometry")

// IsBufferFull returns whether or not an error reports that a replay
// buffer cannot store any more data until it is reset.
func IsBufferFull(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errBufferFull
}

// IsBatchShape returns whether or not an error reports that data added
// to or loaded into a replay buffer has the wrong shape.
func IsBatchShape(err error) bool {
	if replayErr, ok := err.(*ReplayError); ok {
		err = replayErr.Err
	}
	return err == errBatchShape
}
