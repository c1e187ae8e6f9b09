package checkpointer

import "errors"

// ErrBufferOmitted is returned when decoding a blob whose buffer could
// not be stored within the size ceiling
var ErrBufferOmitted = errors.New("replay buffer omitted from checkpoint")

var (
	errNotFound        = errors.New("checkpoint not found")
	errStoreClosed     = errors.New("checkpoint store closed")
	errGeometry        = errors.New("blob geometry does not match buffer")
	errCorrupt         = errors.New("corrupt blob payload")
	errUnknownStrategy = errors.New("unknown blob strategy")
)

// CheckpointError records an error and the operation that caused it
type CheckpointError struct {
	Op  string
	Err error
}

func (c *CheckpointError) Error() string {
	return c.Op + ": " + c.Err.Error()
}

func (c *CheckpointError) Unwrap() error {
	return c.Err
}

// IsBufferOmitted returns whether an error reports that a checkpoint
// was saved without its replay buffer
func IsBufferOmitted(err error) bool {
	return errors.Is(err, ErrBufferOmitted)
}

// IsNotFound returns whether an error reports a missing checkpoint
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

// IsGeometry returns whether an error reports a blob that does not fit
// the buffer it is decoded into
func IsGeometry(err error) bool {
	return errors.Is(err, errGeometry)
}
