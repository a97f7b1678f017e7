package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxHosts bounds a single scan; wider prefixes are rejected.
const maxHosts = 4096

// Candidate is a host that accepted a connection on the scanned port.
type Candidate struct {
	IP     string `json:"ip"`
	Port   int    `json:"port"`
	MAC    string `json:"mac,omitempty"`
	Banner string `json:"banner,omitempty"`
	// AgentID is set by callers that match the host to a known agent.
	AgentID string `json:"agent_id,omitempty"`
}

// Scanner probes hosts for an open SSH port so agents can be installed on
// them.
type Scanner struct {
	Port        int
	Timeout     time.Duration
	Concurrency int
	// ARP resolves IPs to MAC addresses; nil reads the system table.
	ARP func() map[string]string
}

func NewScanner() *Scanner {
	return &Scanner{Port: 22, Timeout: 2 * time.Second, Concurrency: 100}
}

// Scan probes every host address in prefixes. onFound, if set, is called
// as each candidate is found, possibly from several goroutines at once.
func (s *Scanner) Scan(ctx context.Context, prefixes []netip.Prefix, onFound func(Candidate)) ([]Candidate, error) {
	var hosts []netip.Addr
	for _, p := range prefixes {
		h, err := Hosts(p)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h...)
	}
	if len(hosts) > maxHosts {
		return nil, fmt.Errorf("scan of %d hosts exceeds limit of %d", len(hosts), maxHosts)
	}

	arp := s.ARP
	if arp == nil {
		arp = systemARPTable
	}
	var (
		mu         sync.Mutex
		candidates = []Candidate{}
		arpTable   map[string]string
	)
	lookupMAC := func(ip string) string {
		mu.Lock()
		defer mu.Unlock()
		if mac, ok := arpTable[ip]; ok {
			return mac
		}
		// The probe itself may have just populated the entry.
		arpTable = arp()
		return arpTable[ip]
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for _, host := range hosts {
		g.Go(func() error {
			c, ok := s.probe(gctx, host)
			if !ok {
				return nil
			}
			c.MAC = lookupMAC(c.IP)
			mu.Lock()
			candidates = append(candidates, c)
			mu.Unlock()
			log.Printf("[scan] found candidate: %s (banner: %q)", c.IP, c.Banner)
			if onFound != nil {
				onFound(c)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return candidates, err
	}
	log.Printf("[scan] complete. found %d candidates", len(candidates))
	return candidates, nil
}

func (s *Scanner) probe(ctx context.Context, host netip.Addr) (Candidate, bool) {
	addr := net.JoinHostPort(host.String(), strconv.Itoa(s.Port))
	d := net.Dialer{Timeout: s.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Candidate{}, false
	}
	defer conn.Close()

	// SSH servers speak first; a short read is enough for the version line.
	banner := ""
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	if n, _ := conn.Read(buf); n > 0 {
		banner = strings.TrimSpace(string(buf[:n]))
	}
	return Candidate{IP: host.String(), Port: s.Port, Banner: banner}, true
}

// Hosts lists the usable addresses of an IPv4 prefix, leaving out the
// network and broadcast addresses when the prefix has them.
func Hosts(p netip.Prefix) ([]netip.Addr, error) {
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("only IPv4 prefixes are supported: %s", p)
	}
	p = p.Masked()
	size := 1 << (32 - p.Bits())
	if size > maxHosts {
		return nil, fmt.Errorf("prefix %s is too large to scan", p)
	}
	hosts := make([]netip.Addr, 0, size)
	for a, i := p.Addr(), 0; i < size; a, i = a.Next(), i+1 {
		hosts = append(hosts, a)
	}
	if p.Bits() < 31 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}

// LocalSubnets returns the /24 around each non-loopback IPv4 interface
// address plus any listed in SCAN_SUBNETS (comma separated CIDRs or bare
// addresses, which are widened to /24).
func LocalSubnets() ([]netip.Prefix, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var out []netip.Prefix
	seen := make(map[netip.Prefix]bool)
	add := func(p netip.Prefix) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip, ok := netip.AddrFromSlice(ipnet.IP.To4()); ok {
			add(netip.PrefixFrom(ip, 24).Masked())
		}
	}
	extra, err := ParseSubnets(os.Getenv("SCAN_SUBNETS"))
	if err != nil {
		log.Printf("[scan] SCAN_SUBNETS: %v", err)
	}
	for _, p := range extra {
		add(p)
	}
	if len(out) == 0 {
		return nil, errors.New("no local IPv4 subnet found")
	}
	return out, nil
}

// ParseSubnets parses a comma separated list of CIDRs or addresses. Bare
// addresses become the /24 containing them. Invalid entries are reported
// together; the valid ones are still returned.
func ParseSubnets(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	var errs []error
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		ip, err := netip.ParseAddr(s)
		if err != nil || !ip.Is4() {
			errs = append(errs, fmt.Errorf("invalid subnet %q", s))
			continue
		}
		out = append(out, netip.PrefixFrom(ip, 24).Masked())
	}
	return out, errors.Join(errs...)
}

func systemARPTable() map[string]string {
	if data, err := os.ReadFile("/proc/net/arp"); err == nil {
		return parseProcARP(string(data))
	}
	// macOS/BSD
	output, err := exec.Command("arp", "-an").Output()
	if err != nil {
		log.Printf("[scan] arp command failed: %v", err)
		return map[string]string{}
	}
	return parseARPCommand(string(output))
}

func parseProcARP(data string) map[string]string {
	table := make(map[string]string)
	for i, line := range strings.Split(data, "\n") {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 4 && fields[3] != "00:00:00:00:00:00" {
			table[fields[0]] = fields[3]
		}
	}
	return table
}

// parseARPCommand reads lines like "? (192.168.1.1) at 0:11:22:33:44:55 on en0".
func parseARPCommand(output string) map[string]string {
	table := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 4 || parts[2] != "at" || !strings.HasPrefix(parts[1], "(") {
			continue
		}
		hw, err := net.ParseMAC(normalizeMAC(parts[3]))
		if err != nil {
			continue
		}
		table[strings.Trim(parts[1], "()")] = hw.String()
	}
	return table
}

// normalizeMAC pads the single-digit octets BSD arp prints.
func normalizeMAC(mac string) string {
	octets := strings.Split(mac, ":")
	for i, o := range octets {
		if len(o) == 1 {
			octets[i] = "0" + o
		}
	}
	return strings.Join(octets, ":")
}
