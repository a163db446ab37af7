package chunker

import (
	"context"
	"io"

	"github.com/jaywantadh/BlockStash/internal/metadata"
	"github.com/jaywantadh/BlockStash/internal/streaming"
)

// Reassemble writes the file described by meta to w, block by block in
// inode order, and returns the number of bytes written. Every block is
// checked against its hash and the total against the recorded file size.
func Reassemble(ctx context.Context, meta *metadata.FileMetadata, blocks streaming.BlockSource, w io.Writer) (int64, error) {
	r, err := streaming.NewReader(ctx, meta, blocks)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(w, r)
}
