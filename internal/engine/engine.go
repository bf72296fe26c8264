// Package engine implements the recovery engine: the component that opens
// no devices and writes no files itself, but orchestrates the metadata and
// signature phases over an already-open device.Reader, merges their
// results, deduplicates, and reports progress to an external callback.
package engine

import (
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shubham/filerecovery/internal/carve"
	"github.com/shubham/filerecovery/internal/detect"
	"github.com/shubham/filerecovery/internal/device"
	"github.com/shubham/filerecovery/internal/fsparse"
	"github.com/shubham/filerecovery/internal/types"
)

const (
	detectHeadSize        = 8192
	metadataPartitionCap  = 100 * 1024 * 1024
	recentEventCapacity   = 64
)

// ProgressEvent is one point-in-time progress report, retained in a short
// ring buffer so a caller that missed the live callback (e.g. a UI that
// attaches mid-run) can catch up.
type ProgressEvent struct {
	Percent float64
	Status  string
	Time    time.Time
}

// Engine drives one recovery run. It is not safe to call StartRecovery
// concurrently with itself, but Progress, IsRunning, RecoveredFiles, and
// StopRecovery may be called from any goroutine while a run is in flight.
type Engine struct {
	cfg types.ScanConfig

	formatEngines []carve.Engine
	fsParsers     []fsparse.Parser

	mu       sync.Mutex
	results  []types.RecoveredFile
	events   []ProgressEvent
	progress float64
	status   string

	running  atomic.Bool
	stopFlag atomic.Bool

	callback func(progress float64, status string)
}

// New creates an Engine for cfg. cfg is normalized (zero-valued fields
// replaced by defaults) immediately.
func New(cfg types.ScanConfig) *Engine {
	return &Engine{cfg: cfg.Normalized()}
}

// AddFormatEngine registers a signature-based carving engine, taking
// ownership of it for the lifetime of the Engine.
func (e *Engine) AddFormatEngine(eng carve.Engine) { e.formatEngines = append(e.formatEngines, eng) }

// AddFilesystemParser registers a metadata-based filesystem parser, taking
// ownership of it for the lifetime of the Engine.
func (e *Engine) AddFilesystemParser(p fsparse.Parser) { e.fsParsers = append(e.fsParsers, p) }

// SetProgressCallback installs fn to be invoked as progress advances. fn
// may be called from any worker goroutine and must not block.
func (e *Engine) SetProgressCallback(fn func(progress float64, status string)) { e.callback = fn }

// StartRecovery runs the full pipeline against reader and returns the
// terminal status. reader must already be open; StartRecovery never opens
// or closes it.
func (e *Engine) StartRecovery(reader device.Reader) types.RecoveryStatus {
	if e.cfg.DevicePath == "" || e.cfg.OutputPath == "" {
		e.report(0, "configuration error: device path and output path are required")
		return types.StatusFailed
	}
	if reader == nil {
		return types.StatusDeviceNotFound
	}

	e.running.Store(true)
	e.stopFlag.Store(false)
	defer e.running.Store(false)

	e.report(5, "initializing")
	deviceSize := reader.Size()

	if e.cfg.UseMetadataRecovery {
		e.runMetadataPhase(reader, deviceSize)
	}
	e.report(30, "metadata phase complete")

	if e.stopFlag.Load() {
		return e.finish()
	}

	if e.cfg.UseSignatureRecovery {
		e.runSignaturePhase(reader, deviceSize)
	}
	e.report(80, "signature phase complete")

	e.postProcess(deviceSize)
	e.report(100, "complete")

	return e.finish()
}

func (e *Engine) finish() types.RecoveryStatus {
	if e.stopFlag.Load() {
		return types.StatusPartialSuccess
	}
	return types.StatusSuccess
}

// runMetadataPhase reads the device head, detects the filesystem, hands a
// bounded window of the partition to the matching parser, and appends its
// deleted-file harvest.
func (e *Engine) runMetadataPhase(reader device.Reader, deviceSize int64) {
	e.report(10, "detecting filesystem")
	head, err := device.ReadFull(reader, 0, detectHeadSize)
	if err != nil || len(head) < detectHeadSize {
		e.report(30, "metadata phase skipped: could not read device head")
		return
	}

	result := detect.Detect(head)
	if !result.Valid {
		e.report(30, "metadata phase skipped: unrecognized filesystem")
		return
	}

	windowSize := deviceSize
	if windowSize > metadataPartitionCap {
		windowSize = metadataPartitionCap
	}
	window, err := device.ReadFull(reader, 0, int(windowSize))
	if err != nil {
		e.report(30, "metadata phase skipped: could not read partition window")
		return
	}

	for _, parser := range e.fsParsers {
		if e.stopFlag.Load() {
			return
		}
		if !parser.CanParse(head) {
			continue
		}
		if !parser.Init(window) {
			continue
		}
		e.report(20, "recovering deleted entries: "+parser.FSType().String())
		found := filterValid(parser.RecoverDeleted(), uint64(deviceSize), parser.FSType().String())
		var wanted []types.RecoveredFile
		for _, f := range found {
			if e.cfg.WantsType(f.FileType) {
				wanted = append(wanted, f)
			}
		}
		e.mu.Lock()
		e.results = append(e.results, wanted...)
		e.mu.Unlock()
		return // first matching parser wins, per detector priority order
	}
}

// runSignaturePhase slices the device into fixed-size chunks and fans them
// out to a bounded worker pool; each worker reads its chunk and runs every
// registered format engine against it. Workers pull chunk indices from a
// shared channel, and each worker appends its chunk's results to the shared
// results slice itself under e.mu; the orchestrator does no separate merge.
func (e *Engine) runSignaturePhase(reader device.Reader, deviceSize int64) {
	chunkSize := e.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = types.DefaultChunkSize
	}
	chunkCount := int((deviceSize + chunkSize - 1) / chunkSize)
	if chunkCount == 0 {
		return
	}

	numWorkers := e.cfg.NumThreads
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0) - 1
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	indices := make(chan int, chunkCount)
	for i := 0; i < chunkCount; i++ {
		indices <- i
	}
	close(indices)

	var wg sync.WaitGroup
	var completed atomic.Int64

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				if e.stopFlag.Load() {
					return
				}
				e.scanChunk(reader, idx, chunkSize, deviceSize)

				done := completed.Add(1)
				pct := 35 + (float64(done)/float64(chunkCount))*45
				e.report(pct, "scanning")
			}
		}()
	}
	wg.Wait()
}

func (e *Engine) scanChunk(reader device.Reader, idx int, chunkSize, deviceSize int64) {
	base := int64(idx) * chunkSize
	length := chunkSize
	if base+length > deviceSize {
		length = deviceSize - base
	}
	if length <= 0 {
		return
	}

	data, err := device.ReadFull(reader, base, int(length))
	if err != nil || len(data) == 0 {
		return
	}

	var chunkResults []types.RecoveredFile
	for _, eng := range e.formatEngines {
		found := filterValid(eng.Carve(data, uint64(base)), uint64(deviceSize), "carve")
		for _, f := range found {
			if e.cfg.WantsType(f.FileType) {
				chunkResults = append(chunkResults, f)
			}
		}
	}

	if len(chunkResults) == 0 {
		return
	}
	e.mu.Lock()
	e.results = append(e.results, chunkResults...)
	e.mu.Unlock()
}

// filterValid drops any candidate that fails RecoveredFile.Validate,
// logging each rejection at debug level rather than letting an invalid
// record reach persistence or the dedup pass.
func filterValid(candidates []types.RecoveredFile, deviceSize uint64, source string) []types.RecoveredFile {
	valid := candidates[:0]
	for _, c := range candidates {
		if err := c.Validate(deviceSize); err != nil {
			slog.Debug("dropping invalid recovered file candidate", "source", source, "error", err)
			continue
		}
		valid = append(valid, c)
	}
	return valid
}

// postProcess applies the deduplication rule: sort by (start_offset,
// file_size), collapsing consecutive records that share both fields.
func (e *Engine) postProcess(deviceSize int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sort.SliceStable(e.results, func(i, j int) bool {
		a, b := e.results[i], e.results[j]
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		return a.FileSize < b.FileSize
	})

	var deduped []types.RecoveredFile
	for _, r := range e.results {
		if n := len(deduped); n > 0 {
			prev := deduped[n-1]
			if prev.StartOffset == r.StartOffset && prev.FileSize == r.FileSize {
				continue
			}
		}
		deduped = append(deduped, r)
	}
	e.results = deduped
}

// RecoveredFiles returns a snapshot of every result produced so far.
func (e *Engine) RecoveredFiles() []types.RecoveredFile {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.RecoveredFile, len(e.results))
	copy(out, e.results)
	return out
}

// RecoveredFileCount returns the number of results produced so far.
func (e *Engine) RecoveredFileCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.results)
}

// Progress returns the last-reported progress percentage, in [0.0, 100.0].
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// IsRunning reports whether a recovery run is currently in flight.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// StopRecovery requests cooperative cancellation. Workers observe the flag
// between chunks and between phases; IsRunning becomes false once they
// have drained.
func (e *Engine) StopRecovery() { e.stopFlag.Store(true) }

// RecentEvents returns up to the last 64 progress events reported, oldest
// first.
func (e *Engine) RecentEvents() []ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ProgressEvent, len(e.events))
	copy(out, e.events)
	return out
}

func (e *Engine) report(percent float64, status string) {
	e.mu.Lock()
	if percent > e.progress {
		e.progress = percent
	}
	e.status = status
	event := ProgressEvent{Percent: e.progress, Status: status, Time: time.Now()}
	e.events = append(e.events, event)
	if len(e.events) > recentEventCapacity {
		e.events = e.events[len(e.events)-recentEventCapacity:]
	}
	e.mu.Unlock()

	if e.callback != nil {
		e.callback(event.Percent, status)
	}
}
