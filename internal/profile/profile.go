// Package profile generates the per-run randomized server identity (SSH
// banner, kernel string, uptime, load, process table) that keeps uname/
// uptime/ps and the SSH version banner internally consistent for a run.
package profile

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Profile is a consistent snapshot of the simulated host's identity.
type Profile struct {
	Hostname   string
	SSHVersion string
	Kernel     string
	UptimeDays int
	UptimeStr  string
	LoadStr    string
	SSHDPID    int
	LastIP     string
	MemTotal   string
	MemUsed    string
	DiskUsed   int
	DiskSize   int
}

// KernelShort returns just the kernel release token, e.g. "5.15.0-1034-aws".
func (p Profile) KernelShort() string {
	f := strings.Fields(p.Kernel)
	if len(f) == 0 {
		return p.Kernel
	}
	return f[0]
}

// KernelBuild returns the build string following the release token.
func (p Profile) KernelBuild() string {
	f := strings.Fields(p.Kernel)
	if len(f) < 2 {
		return p.Kernel
	}
	return strings.Join(f[1:], " ")
}

var (
	hostnames = []string{
		"web-prod-01", "web-01", "api-server-01", "prod-app-01",
		"ubuntu-srv-01", "linux-server", "prod-web-01", "app-node-01",
		"backend-prod", "srv-main-01",
	}
	kernels = []string{
		"5.15.0-1034-aws #38-Ubuntu SMP Mon Apr 17 11:42:51 UTC 2024",
		"5.15.0-107-generic #117-Ubuntu SMP Mon Apr 15 19:16:51 UTC 2024",
		"5.15.0-91-generic #101-Ubuntu SMP Tue Nov 14 13:30:08 UTC 2023",
		"5.19.0-1029-aws #30-Ubuntu SMP Mon Mar 27 20:26:52 UTC 2023",
		"6.5.0-35-generic #35~22.04.1-Ubuntu SMP Mon May 06 14:00:04 UTC 2024",
	}
	sshVersions = []string{
		"SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.6",
		"SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.11",
		"SSH-2.0-OpenSSH_9.3p1 Ubuntu-1ubuntu3.6",
		"SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.10",
		"SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13.5",
	}
	lastIPs = []string{
		"203.0.113.42", "198.51.100.10", "192.0.2.15",
		"45.33.32.156", "104.21.8.82", "172.217.14.196",
	}
)

// New generates a fresh random profile. hostnameOverride, if non-empty,
// replaces the randomized hostname (used when the operator pins --hostname).
func New(hostnameOverride string) Profile {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	hostname := hostnames[rng.Intn(len(hostnames))]
	if hostnameOverride != "" {
		hostname = hostnameOverride
	}

	uptimeDays := 30 + rng.Intn(171)
	uptimeHours := rng.Intn(24)
	uptimeMins := rng.Intn(60)
	uptimeStr := fmt.Sprintf("%d days, %2d:%02d", uptimeDays, uptimeHours, uptimeMins)

	load1 := rng.Float64() * 0.8
	load5 := rng.Float64() * 0.6
	load15 := rng.Float64() * 0.4

	memTotalG := []int{8, 16, 32}[rng.Intn(3)]
	memUsedG := 1 + rng.Intn(memTotalG/2)
	diskSize := []int{100, 200, 500}[rng.Intn(3)]
	diskUsed := 20 + rng.Intn(50)

	return Profile{
		Hostname:   hostname,
		SSHVersion: sshVersions[rng.Intn(len(sshVersions))],
		Kernel:     kernels[rng.Intn(len(kernels))],
		UptimeDays: uptimeDays,
		UptimeStr:  uptimeStr,
		LoadStr:    fmt.Sprintf("%.2f, %.2f, %.2f", load1, load5, load15),
		SSHDPID:    500 + rng.Intn(600),
		LastIP:     lastIPs[rng.Intn(len(lastIPs))],
		MemTotal:   fmt.Sprintf("%dGi", memTotalG),
		MemUsed:    fmt.Sprintf("%dGi", memUsedG),
		DiskUsed:   diskUsed,
		DiskSize:   diskSize,
	}
}

// Rotator holds a mutable current profile behind a reader/writer lock and
// optionally rotates it on an interval, mirroring a server's fingerprint
// drifting slowly over a long uptime.
type Rotator struct {
	mu       sync.RWMutex
	current  Profile
	hostname string
}

// NewRotator builds a Rotator with an initial profile already generated.
func NewRotator(hostnameOverride string) *Rotator {
	return &Rotator{current: New(hostnameOverride), hostname: hostnameOverride}
}

// Current returns a snapshot of the active profile. Callers should hold
// onto the result for the duration of one connection.
func (r *Rotator) Current() Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Run rotates the profile every interval until ctx-like done channel closes.
func (r *Rotator) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			next := New(r.hostname)
			r.mu.Lock()
			r.current = next
			r.mu.Unlock()
		}
	}
}
