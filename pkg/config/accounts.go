package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/crutech/nydus/pkg/validation"
)

// ReadAccounts reads the upstream account list: one Microsoft username per
// line, blank lines and #-comments ignored. Duplicate entries are an error
// since each account can only back one pool record.
func ReadAccounts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file %s: %w", path, err)
	}
	defer f.Close()

	var usernames []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := validation.ValidateMicrosoftUsername(line); err != nil {
			return nil, fmt.Errorf("accounts file %s line %d: %w", path, lineno, err)
		}
		if seen[line] {
			return nil, fmt.Errorf("accounts file %s line %d: duplicate account %s", path, lineno, line)
		}
		seen[line] = true
		usernames = append(usernames, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", path, err)
	}
	return usernames, nil
}
