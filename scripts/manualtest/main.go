package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jaywantadh/BlockStash/config"
	"github.com/jaywantadh/BlockStash/internal/engine"
	"github.com/jaywantadh/BlockStash/internal/testutil"
	"github.com/jaywantadh/BlockStash/pkg/logging"
)

// Stores two WAV files that share their audio but differ in header and
// leading silence, then checks both read back intact and that the audio
// blocks were stored once.
func main() {
	ctx := context.Background()
	logging.InitLogger("warn", "")

	root, err := os.MkdirTemp("", "blockstash-manual-")
	if err != nil {
		fmt.Printf("❌ Temp dir failed: %v\n", err)
		return
	}
	defer os.RemoveAll(root)

	cfg := config.Default()
	cfg.BlockSize = 64 * 1024
	cfg.StorageRoot = root
	cfg.StorageLocations = []config.StorageLocation{
		{Path: "disk-a/", Capacity: 1 << 30},
		{Path: "disk-b/", Capacity: 1 << 30},
		{Path: "disk-c/", Capacity: 1 << 30},
	}

	eng, err := engine.New(&cfg, engine.WithLogger(logging.Log))
	if err != nil {
		fmt.Printf("❌ Engine init failed: %v\n", err)
		return
	}
	defer eng.Close()

	audio := testutil.Noise(10*cfg.BlockSize, 42)
	files := map[string][]byte{
		"/.com.example/take-1.wav": testutil.Wave(2, 2000, audio),
		"/.com.example/take-2.wav": testutil.Wave(2, 517, audio),
	}

	for url, data := range files {
		s, err := eng.Create(ctx, url, engine.WriteOptions{ContentType: "audio/wav"})
		if err != nil {
			fmt.Printf("❌ Create %s failed: %v\n", url, err)
			return
		}
		if _, err := io.Copy(s, bytes.NewReader(data)); err != nil {
			fmt.Printf("❌ Write %s failed: %v\n", url, err)
			return
		}
		meta, err := s.Close()
		if err != nil {
			fmt.Printf("❌ Close %s failed: %v\n", url, err)
			return
		}
		fmt.Printf("🧩 %s: %d bytes, %d blocks, %s %.2fs\n", url, meta.FileSize, len(meta.Blocks), meta.MediaType, meta.MediaDuration)
	}

	for url, data := range files {
		var out bytes.Buffer
		if _, err := eng.Read(ctx, url, &out); err != nil {
			fmt.Printf("❌ Read %s failed: %v\n", url, err)
			return
		}
		if sum(out.Bytes()) != sum(data) {
			fmt.Printf("❌ MISMATCH: %s differs from original\n", url)
			return
		}
	}

	stored, err := countBlocks(root)
	if err != nil {
		fmt.Printf("❌ Walk failed: %v\n", err)
		return
	}
	fmt.Printf("📦 Block objects on disk: %d\n", stored)
	fmt.Println("✅ SUCCESS: both files match, shared audio stored once")
}

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func countBlocks(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) != ".json" {
			n++
		}
		return nil
	})
	return n, err
}
