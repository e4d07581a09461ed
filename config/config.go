// Package config loads the process-wide, immutable simulator configuration.
// A Config is constructed once and passed into topology.New; nothing in
// this package keeps it as a package-level global, so two devices never
// share state through it.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thustorage/ramssd/ssdlog"
)

// Config holds every tunable timing and topology parameter, grouped as
// counts, then per-operation latencies, then bus knobs, then lifetime.
type Config struct {
	// Hierarchy counts.
	SSDSize    uint32 // packages per Ssd
	PackageSize uint32 // dies per package
	DieSize    uint32 // planes per die
	PlaneSize  uint32 // blocks per plane
	BlockSize  uint32 // pages per block

	// Per-operation latencies.
	PageRead      time.Duration
	PageWrite     time.Duration
	BlockErase    time.Duration
	PlaneRegRead  time.Duration
	PlaneRegWrite time.Duration
	BusCtrl       time.Duration
	BusData       time.Duration
	RAMRead       time.Duration
	RAMWrite      time.Duration

	// Bus knobs.
	BusMaxConnect uint32
	BusTableSize  uint32

	// Lifetime.
	BlockErases uint32

	// StrictPageState enables strict page-state checks (reject writes to
	// non-empty pages, reject reads of invalid pages). Off by default,
	// matching loose NOCHECK behaviour.
	StrictPageState bool

	// WearLevelling enables erase-count bookkeeping affecting block
	// selection. Disabled by default; reclamation is never triggered
	// automatically regardless of this flag.
	WearLevelling bool

	// FullBusProtocol selects the optional table+gap-search channel
	// locking protocol instead of the default degenerate one.
	FullBusProtocol bool
}

// Default returns the configuration concrete scenarios use.
func Default() Config {
	return Config{
		SSDSize:     16,
		PackageSize: 4,
		DieSize:     2,
		PlaneSize:   1,
		BlockSize:   64,

		PageRead:      5000 * time.Nanosecond,
		PageWrite:     20000 * time.Nanosecond,
		BlockErase:    150000 * time.Nanosecond,
		PlaneRegRead:  0,
		PlaneRegWrite: 0,
		BusCtrl:       5 * time.Nanosecond,
		BusData:       10 * time.Nanosecond,
		RAMRead:       10 * time.Nanosecond,
		RAMWrite:      10 * time.Nanosecond,

		BusMaxConnect: 8,
		BusTableSize:  64,

		BlockErases: 1048675,
	}
}

// TotalPages returns the device's addressable logical page count.
func (c Config) TotalPages() uint64 {
	return uint64(c.SSDSize) * uint64(c.PackageSize) * uint64(c.DieSize) *
		uint64(c.PlaneSize) * uint64(c.BlockSize)
}

// recognizedKeys lists every KEY the config file format accepts.
var recognizedKeys = map[string]func(*Config, int64){
	"RAM_READ_DELAY":        func(c *Config, v int64) { c.RAMRead = clampDuration(v) },
	"RAM_WRITE_DELAY":       func(c *Config, v int64) { c.RAMWrite = clampDuration(v) },
	"BUS_CTRL_DELAY":        func(c *Config, v int64) { c.BusCtrl = clampDuration(v) },
	"BUS_DATA_DELAY":        func(c *Config, v int64) { c.BusData = clampDuration(v) },
	"BUS_MAX_CONNECT":       func(c *Config, v int64) { c.BusMaxConnect = clampUint(v) },
	"BUS_TABLE_SIZE":        func(c *Config, v int64) { c.BusTableSize = clampUint(v) },
	"SSD_SIZE":              func(c *Config, v int64) { c.SSDSize = clampUint(v) },
	"PACKAGE_SIZE":          func(c *Config, v int64) { c.PackageSize = clampUint(v) },
	"DIE_SIZE":              func(c *Config, v int64) { c.DieSize = clampUint(v) },
	"PLANE_SIZE":            func(c *Config, v int64) { c.PlaneSize = clampUint(v) },
	"PLANE_REG_READ_DELAY":  func(c *Config, v int64) { c.PlaneRegRead = clampDuration(v) },
	"PLANE_REG_WRITE_DELAY": func(c *Config, v int64) { c.PlaneRegWrite = clampDuration(v) },
	"BLOCK_SIZE":            func(c *Config, v int64) { c.BlockSize = clampUint(v) },
	"BLOCK_ERASES":          func(c *Config, v int64) { c.BlockErases = clampUint(v) },
	"BLOCK_ERASE_DELAY":     func(c *Config, v int64) { c.BlockErase = clampDuration(v) },
	"PAGE_READ_DELAY":       func(c *Config, v int64) { c.PageRead = clampDuration(v) },
	"PAGE_WRITE_DELAY":      func(c *Config, v int64) { c.PageWrite = clampDuration(v) },
}

func clampDuration(v int64) time.Duration {
	if v < 0 {
		return 0
	}
	return time.Duration(v) * time.Nanosecond
}

func clampUint(v int64) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// Load parses the ssd.conf format from r, starting from Default() and
// overriding recognized keys. Unknown keys and unparseable values are
// logged and the line is otherwise ignored; execution continues.
func Load(r io.Reader, logger ssdlog.Logger) (Config, error) {
	if logger == nil {
		logger = ssdlog.Default()
	}
	cfg := Default()

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			logger.Warn("config: parse error", "line", lineNumber, "text", line)
			continue
		}

		name, rawValue := fields[0], fields[1]
		value, err := strconv.ParseInt(rawValue, 10, 64)
		if err != nil {
			logger.Warn("config: parse error", "line", lineNumber, "text", line)
			continue
		}

		apply, ok := recognizedKeys[name]
		if !ok {
			logger.Warn("config: unknown key", "line", lineNumber, "key", name)
			continue
		}
		apply(&cfg, value)
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	return cfg, nil
}

// LoadFile opens path and parses it with Load. If the file does not exist,
// Default() is returned with no error.
func LoadFile(path string, logger ssdlog.Logger) (Config, error) {
	if logger == nil {
		logger = ssdlog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("config: file not found, using defaults", "path", path)
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, logger)
}

// PrintConfig writes the resolved configuration in KEY VALUE form.
func PrintConfig(w io.Writer, c Config) error {
	lines := []struct {
		key   string
		value int64
	}{
		{"RAM_READ_DELAY", c.RAMRead.Nanoseconds()},
		{"RAM_WRITE_DELAY", c.RAMWrite.Nanoseconds()},
		{"BUS_CTRL_DELAY", c.BusCtrl.Nanoseconds()},
		{"BUS_DATA_DELAY", c.BusData.Nanoseconds()},
		{"BUS_MAX_CONNECT", int64(c.BusMaxConnect)},
		{"BUS_TABLE_SIZE", int64(c.BusTableSize)},
		{"SSD_SIZE", int64(c.SSDSize)},
		{"PACKAGE_SIZE", int64(c.PackageSize)},
		{"DIE_SIZE", int64(c.DieSize)},
		{"PLANE_SIZE", int64(c.PlaneSize)},
		{"PLANE_REG_READ_DELAY", c.PlaneRegRead.Nanoseconds()},
		{"PLANE_REG_WRITE_DELAY", c.PlaneRegWrite.Nanoseconds()},
		{"BLOCK_SIZE", int64(c.BlockSize)},
		{"BLOCK_ERASES", int64(c.BlockErases)},
		{"BLOCK_ERASE_DELAY", c.BlockErase.Nanoseconds()},
		{"PAGE_READ_DELAY", c.PageRead.Nanoseconds()},
		{"PAGE_WRITE_DELAY", c.PageWrite.Nanoseconds()},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %d\n", l.key, l.value); err != nil {
			return err
		}
	}
	return nil
}
