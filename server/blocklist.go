package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/zenazn/goji/web"
)

// blockList holds users and source IPs whose requests are refused.
type blockList struct {
	mu     sync.RWMutex
	active bool
	users  map[string]string // user id key, note value
	ips    map[string]string // ip match key, note value
}

func addBlock(blockMap map[string]string, data string) error {
	parts := strings.Split(data, ",")
	switch len(parts) {
	case 1:
		blockMap[parts[0]] = ""
	case 2:
		blockMap[parts[0]] = parts[1]
	default:
		return fmt.Errorf("bad blocklist line")
	}
	return nil
}

// LoadBlockListFile reads "u=<user>[,note]" and "ip=<a.b.c.d>[,note]" lines, where
// ip parts may be "*".
func (s *Server) LoadBlockListFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := s.blocks.load(f); err != nil {
		return fmt.Errorf("blocklist %s: %v", filename, err)
	}
	omerokv.Infof("Blocklist (%s) loaded.\n", filename)
	return nil
}

func (b *blockList) load(r io.Reader) error {
	users := make(map[string]string)
	ips := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "u="):
			if err := addBlock(users, line[2:]); err != nil {
				return fmt.Errorf("bad user blocklist line: %s", line)
			}
		case strings.HasPrefix(line, "ip="):
			if err := addBlock(ips, line[3:]); err != nil {
				return fmt.Errorf("bad ip blocklist line: %s", line)
			}
		default:
			return fmt.Errorf("bad line in blocklist: %s", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.users = users
	b.ips = ips
	b.active = len(users) > 0 || len(ips) > 0
	b.mu.Unlock()
	return nil
}

// blockRequests is middleware refusing requests from blocked users or IPs.  It must
// run after isAuthorized so the user is known.
func (s *Server) blockRequests(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		user, _ := c.Env["user"].(string)
		if s.blocks.blocked(w, r, user) {
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func (b *blockList) blocked(w http.ResponseWriter, r *http.Request, user string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.active {
		return false
	}
	if note, found := b.users[user]; found && user != "" {
		httpError(w, r, http.StatusTooManyRequests, "user %q is blocked: %s", user, note)
		return true
	}
	if len(b.ips) > 0 {
		ip, err := requestSourceIP(r)
		if err != nil {
			omerokv.Errorf("Error getting source IP for request: %v\n", err)
			return false
		}
		if note, found := b.blockedIP(ip); found {
			httpError(w, r, http.StatusTooManyRequests, "IP %q is blocked: %s", ip, note)
			return true
		}
	}
	return false
}

func (b *blockList) blockedIP(ip string) (string, bool) {
	targetParts := strings.Split(ip, ".")
	for blockIP, note := range b.ips {
		parts := strings.Split(blockIP, ".")
		if len(parts) != len(targetParts) {
			continue
		}
		match := true
		for i := range parts {
			if parts[i] != "*" && parts[i] != targetParts[i] {
				match = false
				break
			}
		}
		if match {
			return note, true
		}
	}
	return "", false
}

// See https://www.refactoredtelegram.net/2021/01/a-simple-source-ip-address-filter-in-go/
func requestSourceIP(r *http.Request) (string, error) {
	// Check the Forward header
	forwardedHeader := r.Header.Get("Forwarded")
	if forwardedHeader != "" {
		parts := strings.Split(forwardedHeader, ",")
		firstPart := strings.TrimSpace(parts[0])
		subParts := strings.Split(firstPart, ";")
		for _, part := range subParts {
			normalisedPart := strings.ToLower(strings.TrimSpace(part))
			if strings.HasPrefix(normalisedPart, "for=") {
				return normalisedPart[4:], nil
			}
		}
	}

	// Check the X-Forwarded-For header
	xForwardedForHeader := r.Header.Get("X-Forwarded-For")
	if xForwardedForHeader != "" {
		parts := strings.Split(xForwardedForHeader, ",")
		return strings.TrimSpace(parts[0]), nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	return host, nil
}
