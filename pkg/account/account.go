// Package account groups the chained tokens and the issued game identity
// for one upstream Microsoft account.
package account

import (
	"fmt"

	"github.com/crutech/nydus/pkg/token"
	"github.com/crutech/nydus/pkg/validation"
)

// Profile is the game identity issued for an authenticated account. The
// Token field echoes the Minecraft-stage access token; the game launch
// command needs all three values together.
type Profile struct {
	Name  string
	UUID  string
	Token string
}

// NewProfile validates and constructs a Profile.
func NewProfile(name, id, tok string) (Profile, error) {
	if err := validation.ValidateOpaqueField(name); err != nil {
		return Profile{}, fmt.Errorf("invalid Minecraft username: %w", err)
	}
	if err := validation.ValidateMinecraftUUID(id); err != nil {
		return Profile{}, err
	}
	if err := validation.ValidateOpaqueField(tok); err != nil {
		return Profile{}, fmt.Errorf("invalid Minecraft token: %w", err)
	}
	return Profile{Name: name, UUID: id, Token: tok}, nil
}

// Bundle aggregates the four chained tokens plus the game identity for one
// upstream account.
//
// Invariant: Minecraft.Token() == Profile.Token at all times. Replacing the
// Minecraft token must go through SetMinecraftToken, which rewrites both.
type Bundle struct {
	username  string
	msal      token.AccessToken
	xboxLive  token.AccessToken
	xsts      token.AccessToken
	minecraft token.AccessToken
	profile   Profile
}

// NewBundle validates and constructs a Bundle. The Minecraft token must
// match the token echoed in the profile.
func NewBundle(username string, msal, xboxLive, xsts, minecraft token.AccessToken, profile Profile) (*Bundle, error) {
	if err := validation.ValidateMicrosoftUsername(username); err != nil {
		return nil, err
	}
	for name, tok := range map[string]token.AccessToken{
		"MSAL":      msal,
		"Xbox Live": xboxLive,
		"XSTS":      xsts,
		"Minecraft": minecraft,
	} {
		if tok.IsZero() {
			return nil, fmt.Errorf("%s token is not populated", name)
		}
	}
	if minecraft.Token() != profile.Token {
		return nil, fmt.Errorf("Minecraft token does not match the token echoed in the profile")
	}
	return &Bundle{
		username:  username,
		msal:      msal,
		xboxLive:  xboxLive,
		xsts:      xsts,
		minecraft: minecraft,
		profile:   profile,
	}, nil
}

// Username returns the upstream Microsoft account username.
func (b *Bundle) Username() string { return b.username }

// MSAL returns the identity-provider stage token.
func (b *Bundle) MSAL() token.AccessToken { return b.msal }

// XboxLive returns the platform-auth stage token.
func (b *Bundle) XboxLive() token.AccessToken { return b.xboxLive }

// XSTS returns the platform-authorization stage token.
func (b *Bundle) XSTS() token.AccessToken { return b.xsts }

// Minecraft returns the game-auth stage token.
func (b *Bundle) Minecraft() token.AccessToken { return b.minecraft }

// Profile returns the issued game identity.
func (b *Bundle) Profile() Profile { return b.profile }

// SetMSALToken replaces the identity-provider stage token.
func (b *Bundle) SetMSALToken(t token.AccessToken) {
	b.msal = t
}

// SetXboxLiveToken replaces the platform-auth stage token.
func (b *Bundle) SetXboxLiveToken(t token.AccessToken) {
	b.xboxLive = t
}

// SetXSTSToken replaces the platform-authorization stage token.
func (b *Bundle) SetXSTSToken(t token.AccessToken) {
	b.xsts = t
}

// SetMinecraftToken replaces the game-auth stage token and rewrites the
// token echoed in the profile, keeping the two in step.
func (b *Bundle) SetMinecraftToken(t token.AccessToken) {
	b.minecraft = t
	b.profile.Token = t.Token()
}

// Clone returns a deep copy sharing no substructure with the original.
func (b *Bundle) Clone() *Bundle {
	clone := *b
	return &clone
}
