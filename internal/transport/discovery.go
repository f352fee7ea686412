package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tessro/marquee/internal/merr"
)

const ssdpAddr = "239.255.255.250:1900"

// Search configures a single SSDP discovery pass.
type Search struct {
	// Target is the ST search target, e.g. a UPnP device URN.
	Target string
	// Timeout bounds the collect loop.
	Timeout time.Duration
	// MaxHosts stops collection early once reached. Zero means no cap.
	MaxHosts int
}

// Host is one SSDP responder.
type Host struct {
	Addr     string `json:"addr"`
	Port     int    `json:"port"`
	USN      string `json:"usn"`
	Location string `json:"location"`
	Server   string `json:"server"`
}

// DiscoverHosts multicasts an M-SEARCH for the search target and collects
// unicast responses until the timeout or host cap is reached. An empty
// result is a valid outcome, never an error.
func DiscoverHosts(ctx context.Context, search Search) ([]Host, error) {
	timeout := search.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, merr.Network("resolve ssdp addr", err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, merr.Network("listen udp", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	if _, err := conn.WriteToUDP(mSearch(search.Target), addr); err != nil {
		return nil, merr.Network("send m-search", err)
	}

	var hosts []Host
	seen := make(map[string]bool)
	buf := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return hosts, nil
		default:
		}

		n, remoteAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break // collect window closed
			}
			continue
		}

		host, ok := parseSSDPResponse(buf[:n], remoteAddr, search.Target)
		if !ok || seen[host.USN] {
			continue
		}
		seen[host.USN] = true
		hosts = append(hosts, host)

		if search.MaxHosts > 0 && len(hosts) >= search.MaxHosts {
			break
		}
	}

	return hosts, nil
}

func mSearch(target string) []byte {
	return []byte(
		"M-SEARCH * HTTP/1.1\r\n" +
			"HOST: " + ssdpAddr + "\r\n" +
			"MAN: \"ssdp:discover\"\r\n" +
			"MX: 2\r\n" +
			"ST: " + target + "\r\n" +
			"\r\n",
	)
}

// parseSSDPResponse parses one unicast SSDP response. Responses for other
// search targets are dropped.
func parseSSDPResponse(data []byte, addr *net.UDPAddr, target string) (Host, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(string(data))), nil)
	if err != nil {
		return Host{}, false
	}
	defer resp.Body.Close()

	if st := resp.Header.Get("ST"); st != target {
		return Host{}, false
	}

	usn := resp.Header.Get("USN")
	if usn == "" {
		return Host{}, false
	}

	location := resp.Header.Get("Location")

	return Host{
		Addr:     addr.IP.String(),
		Port:     portFromLocation(location),
		USN:      usn,
		Location: location,
		Server:   resp.Header.Get("Server"),
	}, true
}

// portFromLocation extracts the port from a LOCATION URL, defaulting to
// 1400 (the renderer description port used by the speakers we target).
func portFromLocation(location string) int {
	port := 1400
	if location == "" {
		return port
	}
	rest := location
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[i+2:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if _, p, err := net.SplitHostPort(rest); err == nil {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return port
}

// BaseURL returns the device's HTTP base, e.g. "http://10.0.0.5:1400".
func (h Host) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", h.Addr, h.Port)
}
