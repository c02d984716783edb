package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/token"
)

// Request envelopes, exactly as the upstream endpoints expect them.

type xboxLiveProperties struct {
	AuthMethod string `json:"AuthMethod"`
	SiteName   string `json:"SiteName"`
	RpsTicket  string `json:"RpsTicket"`
}

type xboxLiveRequest struct {
	Properties   xboxLiveProperties `json:"Properties"`
	RelyingParty string             `json:"RelyingParty"`
	TokenType    string             `json:"TokenType"`
}

type xstsProperties struct {
	SandboxID  string   `json:"SandboxId"`
	UserTokens []string `json:"UserTokens"`
}

type xstsRequest struct {
	Properties   xstsProperties `json:"Properties"`
	RelyingParty string         `json:"RelyingParty"`
	TokenType    string         `json:"TokenType"`
}

type minecraftAuthRequest struct {
	IdentityToken string `json:"identityToken"`
}

// requireField returns the named top-level field of an upstream response,
// failing with ErrMalformedUpstream when absent.
func requireField(body []byte, field string) (gjson.Result, error) {
	value := gjson.GetBytes(body, field)
	if !value.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: response is missing %q", ErrMalformedUpstream, field)
	}
	return value, nil
}

// expiryFromSeconds converts an expires_in style field (seconds from now)
// into an absolute instant. Upstream sends a number; a numeric string is
// also accepted since the identity provider has been seen doing that.
func expiryFromSeconds(value gjson.Result, field string) (time.Time, error) {
	switch value.Type {
	case gjson.Number:
	case gjson.String:
		if value.String() == "" {
			return time.Time{}, fmt.Errorf("%w: %q is empty", ErrMalformedUpstream, field)
		}
		for _, r := range value.String() {
			if r < '0' || r > '9' {
				return time.Time{}, fmt.Errorf("%w: %q is not a number of seconds: %q",
					ErrMalformedUpstream, field, value.String())
			}
		}
	default:
		return time.Time{}, fmt.Errorf("%w: %q is not a number of seconds", ErrMalformedUpstream, field)
	}

	seconds := value.Int()
	if seconds <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q must be positive, got %d", ErrMalformedUpstream, field, seconds)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second), nil
}

// xboxStageToken parses the shared response shape of the Xbox Live and
// XSTS stages: token at "Token", absolute expiry at "NotAfter", and the
// user hash at the fixed nested path.
func xboxStageToken(body []byte) (token.AccessToken, error) {
	tok, err := requireField(body, "Token")
	if err != nil {
		return token.AccessToken{}, err
	}
	notAfter, err := requireField(body, "NotAfter")
	if err != nil {
		return token.AccessToken{}, err
	}
	expiry, err := parseXboxTimestamp(notAfter.String())
	if err != nil {
		return token.AccessToken{}, err
	}
	hash, err := extractXboxHash(body)
	if err != nil {
		return token.AccessToken{}, err
	}
	return token.NewWithHash(tok.String(), expiry, hash)
}

// XboxLiveToken exchanges an identity-provider token for an Xbox Live
// token (stage S2).
func (c *Client) XboxLiveToken(ctx context.Context, msal token.AccessToken) (token.AccessToken, error) {
	if msal.IsZero() {
		return token.AccessToken{}, fmt.Errorf("an identity-provider token is required for Xbox Live authentication")
	}

	envelope := xboxLiveRequest{
		Properties: xboxLiveProperties{
			AuthMethod: "RPS",
			SiteName:   "user.auth.xboxlive.com",
			RpsTicket:  fmt.Sprintf("d=%s", msal.Token()),
		},
		RelyingParty: "http://auth.xboxlive.com",
		TokenType:    "JWT",
	}

	body, err := c.postJSON(ctx, c.endpoints.XboxLive, envelope)
	if err != nil {
		return token.AccessToken{}, fmt.Errorf("Xbox Live authentication failed: %w", err)
	}
	return xboxStageToken(body)
}

// XSTSToken exchanges an Xbox Live token for an XSTS authorization token
// (stage S3).
func (c *Client) XSTSToken(ctx context.Context, xboxLive token.AccessToken) (token.AccessToken, error) {
	if xboxLive.IsZero() {
		return token.AccessToken{}, fmt.Errorf("an Xbox Live token is required for XSTS authorization")
	}

	envelope := xstsRequest{
		Properties: xstsProperties{
			SandboxID:  "RETAIL",
			UserTokens: []string{xboxLive.Token()},
		},
		RelyingParty: "rp://api.minecraftservices.com/",
		TokenType:    "JWT",
	}

	body, err := c.postJSON(ctx, c.endpoints.XSTS, envelope)
	if err != nil {
		return token.AccessToken{}, fmt.Errorf("XSTS authorization failed: %w", err)
	}
	return xboxStageToken(body)
}

// MinecraftToken exchanges an XSTS token plus its user hash for a game
// access token (stage S4).
func (c *Client) MinecraftToken(ctx context.Context, xsts token.AccessToken) (token.AccessToken, error) {
	if xsts.IsZero() {
		return token.AccessToken{}, fmt.Errorf("an XSTS token is required for Minecraft authentication")
	}
	if xsts.Hash() == "" {
		return token.AccessToken{}, fmt.Errorf("the XSTS token carries no user hash")
	}

	envelope := minecraftAuthRequest{
		IdentityToken: fmt.Sprintf("XBL3.0 x=%s;%s", xsts.Hash(), xsts.Token()),
	}

	body, err := c.postJSON(ctx, c.endpoints.MinecraftAuth, envelope)
	if err != nil {
		return token.AccessToken{}, fmt.Errorf("Minecraft authentication failed: %w", err)
	}

	tok, err := requireField(body, "access_token")
	if err != nil {
		return token.AccessToken{}, err
	}
	expiresIn, err := requireField(body, "expires_in")
	if err != nil {
		return token.AccessToken{}, err
	}
	expiry, err := expiryFromSeconds(expiresIn, "expires_in")
	if err != nil {
		return token.AccessToken{}, err
	}
	return token.New(tok.String(), expiry)
}

// Profile fetches the game identity issued to the authenticated account
// (stage S5). The returned profile echoes the given game token.
func (c *Client) Profile(ctx context.Context, minecraft token.AccessToken) (account.Profile, error) {
	if minecraft.IsZero() {
		return account.Profile{}, fmt.Errorf("a Minecraft token is required to fetch the profile")
	}

	body, err := c.getJSON(ctx, c.endpoints.MinecraftProfile, minecraft.Token())
	if err != nil {
		return account.Profile{}, fmt.Errorf("Minecraft profile fetch failed: %w", err)
	}

	name, err := requireField(body, "name")
	if err != nil {
		return account.Profile{}, err
	}
	id, err := requireField(body, "id")
	if err != nil {
		return account.Profile{}, err
	}

	profile, err := account.NewProfile(name.String(), id.String(), minecraft.Token())
	if err != nil {
		return account.Profile{}, fmt.Errorf("%w: %v", ErrMalformedUpstream, err)
	}
	return profile, nil
}
