// cmd/hostwatch-agent/main.go - Metrics reporting agent
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

type report struct {
	CollectedAt time.Time `json:"collected_at"`
	IntIP       string    `json:"int_ip,omitempty"`
	KernelName  string    `json:"kernel_name,omitempty"`
	KernelVer   string    `json:"kernel_version,omitempty"`
	CPUPct      *float64  `json:"cpu_pct,omitempty"`
	MemUsedMB   int64     `json:"mem_used_mb,omitempty"`
	MemTotalMB  int64     `json:"mem_total_mb,omitempty"`
	MemPct      *float64  `json:"mem_pct,omitempty"`
	DiskUsedGB  float64   `json:"disk_used_gb,omitempty"`
	DiskTotalGB float64   `json:"disk_total_gb,omitempty"`
	DiskPct     *float64  `json:"disk_pct,omitempty"`
}

func main() {
	server := flag.String("server", "http://127.0.0.1:8000", "hostwatch server base URL")
	hostKey := flag.String("key", os.Getenv("HOSTWATCH_KEY"), "host key (or HOSTWATCH_KEY env)")
	interval := flag.Duration("interval", 0, "reporting interval; 0 reports once and exits")
	diskPath := flag.String("disk", "/", "filesystem path to sample for disk usage")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP request timeout")
	retries := flag.Int("retries", 2, "retry attempts per report")
	flag.Parse()

	if *hostKey == "" {
		logrus.Fatal("A host key is required (-key or HOSTWATCH_KEY)")
	}

	client := &http.Client{Timeout: *timeout}
	url := strings.TrimRight(*server, "/") + "/report"

	for {
		payload := collect(*diskPath)
		if err := post(client, url, *hostKey, payload, *retries); err != nil {
			logrus.WithError(err).Error("Failed to report metrics")
		}

		if *interval <= 0 {
			return
		}
		time.Sleep(*interval)
	}
}

func collect(diskPath string) *report {
	r := &report{CollectedAt: time.Now().UTC()}

	if pct, err := sampleCPU(500 * time.Millisecond); err == nil {
		r.CPUPct = &pct
	} else {
		logrus.WithError(err).Warn("CPU sample unavailable")
	}

	if usedMB, totalMB, pct, err := readMeminfo(); err == nil {
		r.MemUsedMB = usedMB
		r.MemTotalMB = totalMB
		r.MemPct = &pct
	} else {
		logrus.WithError(err).Warn("Memory sample unavailable")
	}

	if usedGB, totalGB, pct, err := statDisk(diskPath); err == nil {
		r.DiskUsedGB = usedGB
		r.DiskTotalGB = totalGB
		r.DiskPct = &pct
	} else {
		logrus.WithError(err).Warn("Disk sample unavailable")
	}

	r.KernelName, r.KernelVer = kernelInfo()
	r.IntIP = internalIP()

	return r
}

func post(client *http.Client, url, hostKey string, payload *report, retries int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(2 * time.Second)
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+hostKey)

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			logrus.Debug("Reported metrics")
			return nil
		}
		lastErr = fmt.Errorf("server returned %s", resp.Status)
	}

	return lastErr
}

// sampleCPU reads /proc/stat twice and derives overall busy percentage over
// the sample window.
func sampleCPU(window time.Duration) (float64, error) {
	idle1, total1, err := readCPUStat()
	if err != nil {
		return 0, err
	}

	time.Sleep(window)

	idle2, total2, err := readCPUStat()
	if err != nil {
		return 0, err
	}

	dTotal := total2 - total1
	if dTotal == 0 {
		return 0, nil
	}
	busy := 100 * (1 - float64(idle2-idle1)/float64(dTotal))
	if busy < 0 {
		busy = 0
	}
	return busy, nil
}

func readCPUStat() (idle, total uint64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		for i, field := range fields[1:] {
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("bad /proc/stat field %q: %w", field, err)
			}
			total += v
			// idle + iowait
			if i == 3 || i == 4 {
				idle += v
			}
		}
		return idle, total, nil
	}

	return 0, 0, fmt.Errorf("no cpu line in /proc/stat")
}

func readMeminfo() (usedMB, totalMB int64, pct float64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	var totalKB, availKB int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, _ := strconv.ParseInt(fields[1], 10, 64)
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}
	if totalKB == 0 {
		return 0, 0, 0, fmt.Errorf("MemTotal missing from /proc/meminfo")
	}

	usedKB := totalKB - availKB
	usedMB = usedKB / 1024
	totalMB = totalKB / 1024
	pct = 100 * float64(usedKB) / float64(totalKB)
	return usedMB, totalMB, pct, nil
}

func statDisk(path string) (usedGB, totalGB float64, pct float64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, 0, err
	}

	total := float64(st.Blocks) * float64(st.Bsize)
	free := float64(st.Bfree) * float64(st.Bsize)
	if total == 0 {
		return 0, 0, 0, fmt.Errorf("filesystem %s reports zero size", path)
	}

	used := total - free
	const gb = 1024 * 1024 * 1024
	return used / gb, total / gb, 100 * used / total, nil
}

func kernelInfo() (name, version string) {
	if b, err := os.ReadFile("/proc/sys/kernel/ostype"); err == nil {
		name = strings.TrimSpace(string(b))
	}
	if b, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		version = strings.TrimSpace(string(b))
	}
	return name, version
}

func internalIP() string {
	conn, err := net.DialTimeout("udp", "8.8.8.8:80", time.Second)
	if err != nil {
		return ""
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
