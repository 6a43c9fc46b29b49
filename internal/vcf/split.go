package vcf

// SplitBatches spreads items over at most files batches as evenly as
// possible: the first len(items)%files batches take one extra item, no batch
// exceeds perFile, and empty batches are dropped. Items beyond
// perFile*files are left out.
func SplitBatches[T any](items []T, perFile, files int) [][]T {
	if len(items) == 0 || perFile <= 0 || files <= 0 {
		return nil
	}
	base := len(items) / files
	extra := len(items) % files

	var out [][]T
	start := 0
	for i := 0; i < files && start < len(items); i++ {
		size := base
		if i < extra {
			size++
		}
		size = min(size, perFile)
		end := min(start+size, len(items))
		if end > start {
			out = append(out, items[start:end])
		}
		start = end
	}
	return out
}

// ChunkEvenly cuts items into n consecutive parts of ceil(len/n) items; the
// last part may be shorter. Used when a file is split into a fixed count.
func ChunkEvenly[T any](items []T, n int) [][]T {
	if len(items) == 0 || n <= 0 {
		return nil
	}
	size := (len(items) + n - 1) / n
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
