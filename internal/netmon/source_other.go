//go:build !linux

package netmon

// NewSource returns the net package Source.
func NewSource() Source {
	return NetSource{}
}
