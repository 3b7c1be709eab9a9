package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkName formats a chunk name from a file ID and a zero-based sequence
// number: "<fileID>_<sequence>".
func ChunkName(fileID string, sequence int) string {
	return fmt.Sprintf("%s_%d", fileID, sequence)
}

// SplitChunkName parses a chunk name back into its file ID and sequence
// number. It returns an error if name is not of the form "<id>_<seq>".
func SplitChunkName(name string) (fileID string, sequence int, err error) {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed chunk name %q", name)
	}
	seq, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed chunk sequence in %q: %w", name, err)
	}
	return name[:idx], seq, nil
}

// ChunkCount returns ceil(size / chunkSize), the number of chunks a file
// of the given size is split into. A zero-byte file still has one chunk.
func ChunkCount(size int64, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	if size == 0 {
		return 1
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return int(n)
}

// ChunkByteRange returns the half-open byte range [start, end) of the
// sequence-th chunk (0-based) of a file with the given size and chunk
// size. The last chunk is the remainder, never a full chunkSize unless
// size is an exact multiple.
func ChunkByteRange(size, chunkSize int64, sequence int) (start, end int64) {
	start = int64(sequence) * chunkSize
	end = start + chunkSize
	if end > size {
		end = size
	}
	return start, end
}
