package auth

import (
	"context"
	"fmt"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/logger"
)

// AuthStream runs the full chain for one upstream username and returns the
// finished bundle. A failure at any stage fails the whole stream; partial
// results are discarded.
func (c *Client) AuthStream(ctx context.Context, provider IdentityProvider, username string, interactive bool) (*account.Bundle, error) {
	msal, err := provider.Acquire(ctx, username, interactive)
	if err != nil {
		return nil, fmt.Errorf("identity-provider stage failed for %s: %w", username, err)
	}

	xboxLive, err := c.XboxLiveToken(ctx, msal)
	if err != nil {
		return nil, fmt.Errorf("Xbox Live stage failed for %s: %w", username, err)
	}

	xsts, err := c.XSTSToken(ctx, xboxLive)
	if err != nil {
		return nil, fmt.Errorf("XSTS stage failed for %s: %w", username, err)
	}

	// The two platform stages are expected to agree on the user hash.
	// Downstream uses the XSTS hash either way.
	if xboxLive.Hash() != xsts.Hash() {
		logger.Warnf("Xbox Live and XSTS user hashes differ for %s", username)
	}

	minecraft, err := c.MinecraftToken(ctx, xsts)
	if err != nil {
		return nil, fmt.Errorf("Minecraft stage failed for %s: %w", username, err)
	}

	profile, err := c.Profile(ctx, minecraft)
	if err != nil {
		return nil, fmt.Errorf("profile fetch failed for %s: %w", username, err)
	}

	return account.NewBundle(username, msal, xboxLive, xsts, minecraft, profile)
}

// AuthAll runs AuthStream for every username independently. It never fails
// as a whole: a failed username maps to nil, and failures do not affect
// siblings.
func (c *Client) AuthAll(ctx context.Context, provider IdentityProvider, usernames []string, interactive bool) map[string]*account.Bundle {
	results := make(map[string]*account.Bundle, len(usernames))
	for _, username := range usernames {
		bundle, err := c.AuthStream(ctx, provider, username, interactive)
		if err != nil {
			logger.Errorf("Failed to authenticate %s: %v", username, err)
			results[username] = nil
			continue
		}
		results[username] = bundle
	}
	return results
}
