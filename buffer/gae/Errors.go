package gae

import "fmt"

// ShapeError reports an input whose shape does not fit the batch
type ShapeError struct {
	Op   string
	Name string
	Want []int
	Have []int
}

// Error satisfies the error interface
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: illegal %v shape \n\twant(%v)\n\thave(%v)",
		e.Op, e.Name, e.Want, e.Have)
}

// DtypeError reports an input tensor which is not float32
type DtypeError struct {
	Op   string
	Have string
}

// Error satisfies the error interface
func (e *DtypeError) Error() string {
	return fmt.Sprintf("%v: illegal dtype \n\twant(float32)\n\thave(%v)",
		e.Op, e.Have)
}
