package util

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// Field extracts the bits selected by mask from v and shifts them down by shift.
func Field[T ~uint8 | ~uint16 | ~uint32](v T, mask T, shift uint) T {
	return (v & mask) >> shift
}

// PutField returns v with the bits selected by mask replaced by val << shift.
// Bits of val outside the mask are discarded.
func PutField[T ~uint8 | ~uint16 | ~uint32](v T, mask T, shift uint, val T) T {
	return (v &^ mask) | ((val << shift) & mask)
}
