package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"github.com/crutech/nydus/pkg/logger"
	"github.com/crutech/nydus/pkg/token"
	"github.com/crutech/nydus/pkg/validation"
)

// authorityURL is the consumer-accounts authority; the fleet accounts are
// ordinary personal Microsoft accounts.
const authorityURL = "https://login.microsoftonline.com/consumers"

// scopes is the single scope the rest of the chain needs.
var scopes = []string{"XboxLive.signin"}

// IdentityProvider acquires the identity-provider (S1) token for an
// upstream username. Implementations must honour interactive: when false,
// only cached provider state may be used, and a demand for user interaction
// fails with ErrInteractionRequired.
type IdentityProvider interface {
	Acquire(ctx context.Context, username string, interactive bool) (token.AccessToken, error)
}

// MSALProvider implements IdentityProvider on the Microsoft Authentication
// Library. One instance should be created at startup and shared for the
// process lifetime so silent renewal can reuse the signed-in accounts.
type MSALProvider struct {
	client public.Client
}

// NewMSALProvider creates a provider for the given client ID. When
// cacheFile is non-empty the provider's account state is persisted there,
// which lets non-interactive renewal survive a daemon restart.
func NewMSALProvider(clientID, cacheFile string) (*MSALProvider, error) {
	if err := validation.ValidateClientID(clientID); err != nil {
		return nil, err
	}

	opts := []public.Option{public.WithAuthority(authorityURL)}
	if cacheFile != "" {
		opts = append(opts, public.WithCache(&fileCache{path: cacheFile}))
	}

	client, err := public.New(clientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MSAL client: %w", err)
	}
	return &MSALProvider{client: client}, nil
}

// Acquire tries silent acquisition against the cached account first and
// falls back to an interactive browser prompt only when allowed.
func (p *MSALProvider) Acquire(ctx context.Context, username string, interactive bool) (token.AccessToken, error) {
	if err := validation.ValidateMicrosoftUsername(username); err != nil {
		return token.AccessToken{}, err
	}

	accounts, err := p.client.Accounts(ctx)
	if err != nil {
		return token.AccessToken{}, fmt.Errorf("failed to list cached accounts: %w", err)
	}

	for _, acc := range accounts {
		if acc.PreferredUsername != username {
			continue
		}
		result, err := p.client.AcquireTokenSilent(ctx, scopes, public.WithSilentAccount(acc))
		if err == nil {
			return fromAuthResult(result)
		}
		logger.Debugf("Silent token acquisition failed for %s: %v", username, err)
		break
	}

	if !interactive {
		return token.AccessToken{}, fmt.Errorf("%w: no cached token for %s", ErrInteractionRequired, username)
	}

	result, err := p.client.AcquireTokenInteractive(ctx, scopes, public.WithLoginHint(username))
	if err != nil {
		return token.AccessToken{}, fmt.Errorf("interactive authentication failed for %s: %w", username, err)
	}
	return fromAuthResult(result)
}

func fromAuthResult(result public.AuthResult) (token.AccessToken, error) {
	if result.AccessToken == "" {
		return token.AccessToken{}, fmt.Errorf("%w: identity provider returned an empty access token", ErrMalformedUpstream)
	}
	return token.New(result.AccessToken, result.ExpiresOn)
}

// fileCache persists the MSAL token cache to a single file. MSAL serialises
// its own state; this only moves the bytes.
type fileCache struct {
	path string
}

var _ cache.ExportReplace = (*fileCache)(nil)

func (f *fileCache) Replace(_ context.Context, c cache.Unmarshaler, _ cache.ReplaceHints) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token cache %s: %w", f.path, err)
	}
	return c.Unmarshal(data)
}

func (f *fileCache) Export(_ context.Context, c cache.Marshaler, _ cache.ExportHints) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialise token cache: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token cache %s: %w", f.path, err)
	}
	return nil
}
