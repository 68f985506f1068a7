package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voting-audit/models"
)

const (
	dumpPattern    = "audit_chain_*.json"
	dumpTimeLayout = "20060102150405.000000000"
)

var ErrEmptyChain = errors.New("cannot export empty chain")

// ChainDump is a point-in-time copy of the audit chain written for offline
// inspection. The ledger is never reloaded from it.
type ChainDump struct {
	Digest     string         `json:"digest"`
	ExportedAt time.Time      `json:"exported_at"`
	Length     int            `json:"length"`
	LastHash   common.Hash    `json:"last_hash"`
	Blocks     []models.Block `json:"blocks"`
}

// ChainExporter writes timestamped dumps into one directory and keeps only
// the most recent ones.
type ChainExporter struct {
	dataDir string
	keep    int
	mutex   sync.RWMutex
	logger  *zap.Logger
}

type chainFile struct {
	path      string
	timestamp time.Time
}

type chainFiles []chainFile

func (f chainFiles) Len() int           { return len(f) }
func (f chainFiles) Less(i, j int) bool { return f[i].timestamp.Before(f[j].timestamp) }
func (f chainFiles) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func NewChainExporter(dataDir string, keep int, logger *zap.Logger) (*ChainExporter, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainExporter{dataDir: absPath, keep: keep, logger: logger}, nil
}

// Export writes blocks to a new dump file and returns its path.
func (s *ChainExporter) Export(digestName string, blocks []models.Block) (string, error) {
	if len(blocks) == 0 {
		return "", ErrEmptyChain
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().UTC()
	dump := ChainDump{
		Digest:     digestName,
		ExportedAt: now,
		Length:     len(blocks),
		LastHash:   blocks[len(blocks)-1].Hash,
		Blocks:     blocks,
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal chain: %w", err)
	}

	path := filepath.Join(s.dataDir, fmt.Sprintf("audit_chain_%s.json", now.Format(dumpTimeLayout)))

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write chain file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to save chain file: %w", err)
	}

	if s.keep > 0 {
		if err := s.cleanupOldFiles(s.keep); err != nil {
			s.logger.Warn("failed to clean up old audit dumps", zap.Error(err))
		}
	}

	s.logger.Info("audit chain exported",
		zap.String("path", path),
		zap.Int("blocks", len(blocks)),
		zap.String("last_hash", dump.LastHash.Hex()))
	return path, nil
}

// LoadLatest reads the most recent dump, or returns nil if none exists.
func (s *ChainExporter) LoadLatest() (*ChainDump, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return LoadDump(files[len(files)-1].path)
}

func LoadDump(path string) (*ChainDump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump %s: %w", path, err)
	}

	var dump ChainDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to decode dump %s: %w", path, err)
	}
	return &dump, nil
}

// listFiles returns dump files sorted oldest first.
func (s *ChainExporter) listFiles() (chainFiles, error) {
	matches, err := filepath.Glob(filepath.Join(s.dataDir, dumpPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var files chainFiles
	for _, file := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "audit_chain_"), ".json")
		timestamp, err := time.Parse(dumpTimeLayout, stamp)
		if err != nil {
			s.logger.Warn("skipping dump with invalid timestamp", zap.String("file", file), zap.Error(err))
			continue
		}
		files = append(files, chainFile{path: file, timestamp: timestamp})
	}

	sort.Sort(files)
	return files, nil
}

func (s *ChainExporter) cleanupOldFiles(keep int) error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= keep {
		return nil
	}

	// Remove older files, keeping the most recent 'keep' files
	for i := 0; i < len(files)-keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			s.logger.Warn("failed to remove old dump", zap.String("file", files[i].path), zap.Error(err))
		}
	}
	return nil
}
