package fs

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// listSize is the size of a listxattr reply: each name plus its NUL.
func listSize(names []string) int {
	total := 0
	for _, name := range names {
		total += len(name) + 1
	}
	return total
}
