package dataset

// Memory estimation helpers used to bound the dataset cache by bytes.
// Estimates are deliberately rough; the cache only needs relative sizes.

// EstimateStringMemory estimates memory usage of a string.
func EstimateStringMemory(s string) int64 {
	// String header (16 bytes on 64-bit) + actual string data
	return 16 + int64(len(s))
}

// EstimateSliceMemory estimates memory usage of a slice.
func EstimateSliceMemory(length, elementSize int) int64 {
	// Slice header (24 bytes on 64-bit) + elements
	return 24 + int64(length*elementSize)
}
