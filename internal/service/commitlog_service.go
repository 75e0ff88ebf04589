package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/model"
	"github.com/stratadb/strata/internal/util"
)

// AppendLog is the durable log contract the engine writes through. Append
// must persist before returning; Replay must yield entries in write order.
type AppendLog interface {
	Append(ctx context.Context, entry *model.LogEntry) error
	Replay(ctx context.Context, apply func(*model.LogEntry) error) error
	Close() error
}

// CommitLogService is the file-backed append log: JSON lines in rotating
// segments, one CRC32 checksum per entry
type CommitLogService struct {
	config      *CommitLogConfig
	currentFile *os.File
	logger      *zap.Logger
	mu          sync.Mutex
	dataDir     string
	segmentID   int64
	sequence    uint64
	stopChan    chan struct{}
}

// CommitLogConfig holds commit log configuration
type CommitLogConfig struct {
	SegmentSize int64
	SyncWrites  bool
}

// NewCommitLogService creates a new commit log service
func NewCommitLogService(cfg *CommitLogConfig, dataDir string, logger *zap.Logger) (*CommitLogService, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create commit log directory: %w", err)
	}

	cls := &CommitLogService{
		config:    cfg,
		logger:    logger,
		dataDir:   dataDir,
		segmentID: time.Now().UnixNano(),
		stopChan:  make(chan struct{}),
	}

	if err := cls.openNewSegment(); err != nil {
		return nil, fmt.Errorf("failed to open commit log segment: %w", err)
	}

	go cls.rotationChecker()

	return cls, nil
}

// Append durably appends an entry to the current segment. The entry's
// sequence number and checksum are assigned here.
func (s *CommitLogService) Append(ctx context.Context, entry *model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequence++
	entry.SequenceNumber = s.sequence
	entry.Checksum = util.ComputeChecksum(entry.Value)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.currentFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to commit log: %w", err)
	}

	if s.config.SyncWrites {
		if err := s.currentFile.Sync(); err != nil {
			return fmt.Errorf("failed to sync commit log: %w", err)
		}
	}

	return nil
}

// openNewSegment creates a new commit log segment
func (s *CommitLogService) openNewSegment() error {
	if s.currentFile != nil {
		s.currentFile.Close()
	}

	s.segmentID = time.Now().UnixNano()
	segmentPath := filepath.Join(s.dataDir, fmt.Sprintf("commitlog-%020d.log", s.segmentID))
	file, err := os.OpenFile(segmentPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open commit log file: %w", err)
	}

	s.currentFile = file
	s.logger.Info("Opened new commit log segment", zap.String("path", segmentPath))

	return nil
}

// rotationChecker periodically checks if rotation is needed
func (s *CommitLogService) rotationChecker() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkRotation()
		case <-s.stopChan:
			return
		}
	}
}

// checkRotation rotates the segment when it exceeds the size threshold
func (s *CommitLogService) checkRotation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentFile == nil {
		return
	}

	fileInfo, err := s.currentFile.Stat()
	if err != nil {
		s.logger.Error("Failed to stat commit log", zap.Error(err))
		return
	}

	if fileInfo.Size() >= s.config.SegmentSize {
		s.logger.Info("Rotating commit log due to size",
			zap.Int64("size", fileInfo.Size()),
			zap.Int64("threshold", s.config.SegmentSize))

		if err := s.openNewSegment(); err != nil {
			s.logger.Error("Failed to rotate commit log", zap.Error(err))
		}
	}
}

// Replay applies every logged entry in write order. A checksum mismatch or
// an unparseable record anywhere but the torn tail of the newest segment is
// corruption and aborts the replay.
func (s *CommitLogService) Replay(ctx context.Context, apply func(*model.LogEntry) error) error {
	s.logger.Info("Starting commit log replay")

	all, err := filepath.Glob(filepath.Join(s.dataDir, "commitlog-*.log"))
	if err != nil {
		return fmt.Errorf("failed to list commit log files: %w", err)
	}
	sort.Strings(all)

	// The segment opened by this process is empty and newer than anything
	// replayable, so it is excluded. The newest remaining segment is the one
	// allowed a torn tail.
	s.mu.Lock()
	current := s.currentFile.Name()
	s.mu.Unlock()

	files := make([]string, 0, len(all))
	for _, filePath := range all {
		if filePath != current {
			files = append(files, filePath)
		}
	}

	replayed := 0
	for i, filePath := range files {
		lastFile := i == len(files)-1
		count, err := s.replayFile(ctx, filePath, lastFile, apply)
		if err != nil {
			return err
		}
		replayed += count
	}

	s.mu.Lock()
	s.sequence = uint64(replayed)
	s.mu.Unlock()

	s.logger.Info("Commit log replay completed", zap.Int("entries", replayed))
	return nil
}

// replayFile replays entries from a single segment
func (s *CommitLogService) replayFile(
	ctx context.Context,
	filePath string,
	lastFile bool,
	apply func(*model.LogEntry) error,
) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open commit log segment: %w", err)
	}
	defer file.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read commit log segment: %w", err)
	}

	count := 0
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if len(line) == 0 {
			continue
		}

		var entry model.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A partial final line in the newest segment is a torn write
			// from a crash mid-append. Everything else is corruption.
			if lastFile && i == len(lines)-1 {
				s.logger.Warn("Dropping torn commit log tail",
					zap.String("file", filePath),
					zap.Error(err))
				return count, nil
			}
			return count, errors.CorruptedReplay(
				fmt.Sprintf("unparseable commit log record in %s", filePath), err)
		}

		if !util.ValidateChecksum(entry.Value, entry.Checksum) {
			return count, errors.CorruptedReplay(
				fmt.Sprintf("checksum mismatch for write %s in %s", entry.WriteID, filePath), nil)
		}

		if err := apply(&entry); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// Close closes the commit log service
func (s *CommitLogService) Close() error {
	close(s.stopChan)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentFile != nil {
		return s.currentFile.Close()
	}
	return nil
}
