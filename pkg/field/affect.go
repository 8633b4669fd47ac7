package field

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/adam-kernel/resonance-go/pkg/core"
)

// ChargeFromMetrics maps system pressure to an affective charge in
// [-1.0, 1.0]. Zero load gives 1.0 (calm); load at or beyond twice the CPU
// count gives -1.0 (distress); the mapping is linear in between.
func ChargeFromMetrics(m core.SystemMetrics) float64 {
	cpus := m.CPUCount
	if cpus <= 0 {
		cpus = 1
	}
	pressure := m.LoadAvg1 / float64(cpus)
	if pressure > 2.0 {
		pressure = 2.0
	}
	return 1.0 - pressure
}

// Sampler reads ambient system metrics from the proc filesystem.
//
// Missing or malformed proc entries degrade to zero values rather than
// errors: the affect signal is advisory and a partial sample is still
// usable.
type Sampler struct {
	// procRoot allows tests to point the sampler at a fake proc tree.
	// Empty means "/proc".
	procRoot string
}

// NewSampler creates a sampler over the host proc filesystem.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Sample reads the current system metrics.
func (s *Sampler) Sample() core.SystemMetrics {
	root := s.procRoot
	if root == "" {
		root = "/proc"
	}

	m := core.SystemMetrics{CPUCount: runtime.NumCPU()}

	if fields := readFields(root + "/loadavg"); len(fields) >= 1 {
		m.LoadAvg1, _ = strconv.ParseFloat(fields[0], 64)
	}
	if fields := readFields(root + "/uptime"); len(fields) >= 1 {
		up, _ := strconv.ParseFloat(fields[0], 64)
		m.UptimeSec = int64(up)
	}
	if fields := readFields(root + "/sys/kernel/random/entropy_avail"); len(fields) >= 1 {
		m.EntropyAvail, _ = strconv.ParseInt(fields[0], 10, 64)
	}
	m.MemTotalKB, m.MemFreeKB = readMemInfo(root + "/meminfo")

	return m
}

// readFields returns the whitespace-separated fields of a file's first line.
func readFields(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.Fields(line)
}

// readMemInfo extracts MemTotal and MemAvailable (falling back to MemFree)
// in kilobytes.
func readMemInfo(path string) (total, free int64) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	var memFree int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			free = value
		case "MemFree:":
			memFree = value
		}
	}
	if free == 0 {
		free = memFree
	}
	return total, free
}
