package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shubham/filerecovery/internal/device"
	"github.com/shubham/filerecovery/internal/persist"
	"github.com/shubham/filerecovery/internal/types"
)

var (
	recoverOutputDir  string
	recoverThreads    int
	recoverChunkSize  int64
	recoverFileTypes  []string
	recoverUseBlake3  bool
)

var recoverCmd = &cobra.Command{
	Use:   "recover <device>",
	Short: "Recover deleted files from a device and write them to an output directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecover,
}

func init() {
	recoverCmd.Flags().StringVarP(&recoverOutputDir, "output", "o", "./recovered", "output directory for recovered files")
	recoverCmd.Flags().IntVar(&recoverThreads, "threads", 0, "worker count for the signature phase (0 = auto)")
	recoverCmd.Flags().Int64Var(&recoverChunkSize, "chunk-size", 0, "chunk size in bytes for the signature phase (0 = default)")
	recoverCmd.Flags().StringSliceVar(&recoverFileTypes, "type", nil, "restrict results to these file types (repeatable)")
	recoverCmd.Flags().BoolVar(&recoverUseBlake3, "blake3", false, "hash recovered files with BLAKE3 instead of SHA-256")
}

func runRecover(cmd *cobra.Command, args []string) error {
	devicePath := args[0]
	cfg := loadConfigOrWarn()

	reader, err := device.Open(devicePath)
	if err != nil {
		return fail("open device: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(recoverOutputDir, 0o755); err != nil {
		return fail("create output directory: %w", err)
	}

	sc := types.ScanConfig{
		DevicePath:           devicePath,
		OutputPath:           recoverOutputDir,
		UseMetadataRecovery:  true,
		UseSignatureRecovery: true,
		NumThreads:           recoverThreads,
		ChunkSize:            recoverChunkSize,
		TargetFileTypes:      recoverFileTypes,
		VerboseLogging:       verboseFlag,
	}
	sc = cfg.ApplyDefaults(sc)

	eng := buildEngine(sc)
	eng.SetProgressCallback(func(progress float64, status string) {
		fmt.Fprintf(os.Stderr, "\r[%5.1f%%] %s\033[K", progress, status)
	})

	status := eng.StartRecovery(reader)
	fmt.Fprintln(os.Stderr)

	files := eng.RecoveredFiles()
	p := persist.New(recoverOutputDir)
	if recoverUseBlake3 {
		p.Algorithm = persist.HashBLAKE3
	}

	written := 0
	for _, f := range files {
		if _, err := p.Persist(reader, f); err != nil {
			slog.Error("failed to persist recovered file", "offset", f.StartOffset, "error", err)
			continue
		}
		written++
	}

	fmt.Printf("recovery %s: %d of %d candidate files written to %s\n", status, written, len(files), recoverOutputDir)
	if status != types.StatusSuccess && status != types.StatusPartialSuccess {
		return fail("recovery failed: %s", status)
	}
	return nil
}
