package scan

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHosts(t *testing.T) {
	t.Parallel()

	hosts, err := Hosts(netip.MustParsePrefix("10.1.2.77/24"))
	require.NoError(t, err)
	require.Len(t, hosts, 254)
	assert.Equal(t, "10.1.2.1", hosts[0].String())
	assert.Equal(t, "10.1.2.254", hosts[253].String())

	hosts, err = Hosts(netip.MustParsePrefix("10.1.2.3/32"))
	require.NoError(t, err)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("10.1.2.3")}, hosts)

	hosts, err = Hosts(netip.MustParsePrefix("10.1.2.4/31"))
	require.NoError(t, err)
	require.Len(t, hosts, 2)

	_, err = Hosts(netip.MustParsePrefix("10.0.0.0/8"))
	require.Error(t, err)
	_, err = Hosts(netip.MustParsePrefix("fd00::/120"))
	require.Error(t, err)
}

func TestParseSubnets(t *testing.T) {
	t.Parallel()

	got, err := ParseSubnets("192.168.1.0/24, 10.0.0.9 ,,bogus")
	require.Error(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParsePrefix("10.0.0.0/24"),
	}, got)

	got, err = ParseSubnets("")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseARP(t *testing.T) {
	t.Parallel()

	proc := "IP address       HW type     Flags       HW address            Mask     Device\n" +
		"192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0\n" +
		"192.168.1.9      0x1         0x0         00:00:00:00:00:00     *        eth0\n"
	assert.Equal(t, map[string]string{"192.168.1.1": "aa:bb:cc:dd:ee:ff"}, parseProcARP(proc))

	bsd := "? (192.168.1.1) at 0:11:22:3:44:55 on en0 ifscope [ethernet]\n" +
		"? (192.168.1.2) at (incomplete) on en0 ifscope [ethernet]\n"
	table := parseARPCommand(bsd)
	assert.Equal(t, "00:11:22:03:44:55", table["192.168.1.1"])
	assert.NotContains(t, table, "192.168.1.2")
}

func TestScanner_FindsListener(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
			_ = conn.Close()
		}
	}()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := &Scanner{
		Port:        port,
		Timeout:     time.Second,
		Concurrency: 4,
		ARP:         func() map[string]string { return map[string]string{"127.0.0.1": "aa:bb:cc:dd:ee:ff"} },
	}
	var (
		mu    sync.Mutex
		found []Candidate
	)
	got, err := s.Scan(context.Background(), []netip.Prefix{netip.MustParsePrefix("127.0.0.1/32")}, func(c Candidate) {
		mu.Lock()
		found = append(found, c)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "127.0.0.1", got[0].IP)
	assert.Equal(t, port, got[0].Port)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", got[0].Banner)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", got[0].MAC)
	assert.Equal(t, got, found)
}

func TestScanner_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScanner()
	s.ARP = func() map[string]string { return nil }
	_, err := s.Scan(ctx, []netip.Prefix{netip.MustParsePrefix("127.0.0.1/32")}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
