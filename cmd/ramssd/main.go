// Command ramssd drives the simulator from the command line: dump-config
// prints the resolved configuration (original_source/ssd_config.c's
// print_config), bench runs the synthetic write/read workloads from
// original_source/run_test.c and run_test2.c, and trace replays an ASCII
// trace file in the format original_source/run_trace.c reads.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thustorage/ramssd/config"
	"github.com/thustorage/ramssd/engine"
	"github.com/thustorage/ramssd/simevent"
	"github.com/thustorage/ramssd/ssdlog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ramssd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError()
	}

	logger := ssdlog.NewZerologLogger(zerolog.InfoLevel)

	switch args[0] {
	case "dump-config":
		return cmdDumpConfig(args[1:], logger)
	case "bench":
		return cmdBench(args[1:], logger)
	case "trace":
		return cmdTrace(args[1:], logger)
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("usage: ramssd <dump-config|bench|trace> [--config FILE] [args...]")
}

// loadConfig mirrors load_config's "file not found => defaults" behaviour.
func loadConfig(args []string, logger ssdlog.Logger) (config.Config, []string, error) {
	path := ""
	rest := args[:0:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			path = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	if path == "" {
		return config.Default(), rest, nil
	}
	cfg, err := config.LoadFile(path, logger)
	return cfg, rest, err
}

func cmdDumpConfig(args []string, logger ssdlog.Logger) error {
	cfg, _, err := loadConfig(args, logger)
	if err != nil {
		return err
	}
	return config.PrintConfig(os.Stdout, cfg)
}

// cmdBench reproduces run_test.c / run_test2.c: a fixed sequence of writes
// then reads against a freshly built device, printed as per-op latencies.
func cmdBench(args []string, logger ssdlog.Logger) error {
	cfg, rest, err := loadConfig(args, logger)
	if err != nil {
		return err
	}

	size := 10
	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("bench: bad size %q: %w", rest[0], err)
		}
		size = n
	}

	eng := engine.New(cfg, engine.DefaultBankGroupBits, logger)

	delta := cfg.BusData - 2*time.Nanosecond
	if delta <= 0 {
		delta = cfg.BusData
	}

	curTime := time.Duration(1)
	var readTotal, writeTotal time.Duration
	var numReads, numWrites int

	for i := 0; i < size; i, curTime = i+1, curTime+delta {
		if lat, err := eng.Arrive(simevent.Write, uint64(i), 1, curTime); err == nil {
			writeTotal += lat
			numWrites++
		}
		if lat, err := eng.Arrive(simevent.Write, uint64(i+10240), 1, curTime); err == nil {
			writeTotal += lat
			numWrites++
		}
	}
	for i := 0; i < size; i, curTime = i+1, curTime+delta {
		if lat, err := eng.Arrive(simevent.Read, 1, 1, curTime); err == nil {
			readTotal += lat
			numReads++
		}
		if lat, err := eng.Arrive(simevent.Read, uint64(i), 1, curTime); err == nil {
			readTotal += lat
			numReads++
		}
	}

	fmt.Printf("Num reads : %d\n", numReads)
	fmt.Printf("Num writes: %d\n", numWrites)
	if numReads > 0 {
		fmt.Printf("Avg read time : %d ns\n", readTotal.Nanoseconds()/int64(numReads))
	}
	if numWrites > 0 {
		fmt.Printf("Avg write time: %d ns\n", writeTotal.Nanoseconds()/int64(numWrites))
	}
	return nil
}

// arriveFanOut dispatches one engine.Arrive call per page in [lpn, lpn+size)
// and returns the maximum of their latencies, the same per-page fan-out
// blockdevice.Device.Submit uses for multi-page requests — a multi-page
// transfer completes only once every constituent page has.
func arriveFanOut(eng *engine.Engine, kind simevent.Kind, lpn uint64, size uint32, arriveTime time.Duration) (time.Duration, error) {
	if size == 0 {
		size = 1
	}
	var maxLatency time.Duration
	for i := uint32(0); i < size; i++ {
		lat, err := eng.Arrive(kind, lpn+uint64(i), 1, arriveTime)
		if err != nil {
			return 0, err
		}
		if lat > maxLatency {
			maxLatency = lat
		}
	}
	return maxLatency, nil
}

// cmdTrace replays a whitespace-separated "time diskno vaddr size op" trace
// file, as original_source/run_trace.c does: vaddr is folded modulo 65536,
// op 0 is a write and op 1 is a read.
func cmdTrace(args []string, logger ssdlog.Logger) error {
	cfg, rest, err := loadConfig(args, logger)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("trace: please provide trace file name")
	}

	f, err := os.Open(rest[0])
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	defer f.Close()

	eng := engine.New(cfg, engine.DefaultBankGroupBits, logger)

	var readTotal, writeTotal time.Duration
	var numReads, numWrites uint64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			fmt.Fprintf(os.Stderr, "trace: bad line: %s\n", line)
			continue
		}

		secs, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace: bad time: %s\n", line)
			continue
		}
		vaddr, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace: bad vaddr: %s\n", line)
			continue
		}
		size, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace: bad size: %s\n", line)
			continue
		}
		op, err := strconv.Atoi(fields[4])
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace: bad op: %s\n", line)
			continue
		}

		arriveTime := time.Duration(secs * float64(time.Second))
		vaddr %= 65536

		switch op {
		case 0:
			if lat, err := arriveFanOut(eng, simevent.Write, vaddr, uint32(size), arriveTime); err == nil && lat != 0 {
				writeTotal += lat
				numWrites++
			}
		case 1:
			if lat, err := arriveFanOut(eng, simevent.Read, vaddr, uint32(size), arriveTime); err == nil && lat != 0 {
				readTotal += lat
				numReads++
			}
		default:
			fmt.Fprintln(os.Stderr, "Bad operation in trace")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	fmt.Printf("Num reads : %d\n", numReads)
	fmt.Printf("Num writes: %d\n", numWrites)
	if numReads > 0 {
		fmt.Printf("Avg read time : %d ns\n", readTotal.Nanoseconds()/int64(numReads))
	}
	if numWrites > 0 {
		fmt.Printf("Avg write time: %d ns\n", writeTotal.Nanoseconds()/int64(numWrites))
	}
	return nil
}
