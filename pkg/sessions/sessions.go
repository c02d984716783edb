// Package sessions discovers who is logged in from where by probing the
// host's login records. The daemon uses it to sweep tenancies whose user is
// no longer connected from the workstation the account was handed to.
package sessions

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/crutech/nydus/pkg/validation"
)

// Session is one remote login: a local user connected from an IPv4 address.
type Session struct {
	User string
	Addr string
}

// Prober lists current remote sessions.
type Prober interface {
	// All returns every remote session on the host. Local logins without
	// an origin address are not included.
	All(ctx context.Context) ([]Session, error)
}

// WhoProber implements Prober with the who(1) utility.
type WhoProber struct{}

// NewWhoProber creates a prober backed by who(1).
func NewWhoProber() *WhoProber {
	return &WhoProber{}
}

// All runs `who` and parses its output.
func (*WhoProber) All(ctx context.Context) ([]Session, error) {
	out, err := exec.CommandContext(ctx, "who").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run who: %w", err)
	}
	return parseWho(string(out))
}

// parseWho extracts remote sessions from who(1) output. Each line is
//
//	USER LINE DATE TIME (ORIGIN)
//
// where the date and time columns count as two fields. Lines whose origin
// is not an IPv4 address (local consoles, hostnames, tmux sockets) are
// skipped rather than rejected.
func parseWho(output string) ([]Session, error) {
	var sessions []Session

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) != 5 {
			continue
		}

		origin := fields[4]
		if !strings.HasPrefix(origin, "(") || !strings.HasSuffix(origin, ")") {
			continue
		}
		addr := origin[1 : len(origin)-1]
		if validation.ValidateIPAddr(addr) != nil {
			continue
		}

		user := fields[0]
		if validation.ValidateSystemUsername(user) != nil {
			continue
		}
		sessions = append(sessions, Session{User: user, Addr: addr})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan who output: %w", err)
	}
	return sessions, nil
}

// Matching reports whether sessions contains a login by user from addr.
func Matching(sessions []Session, user, addr string) bool {
	for _, s := range sessions {
		if s.User == user && s.Addr == addr {
			return true
		}
	}
	return false
}
