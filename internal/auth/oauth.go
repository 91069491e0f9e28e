package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// discordEndpoint is Discord's OAuth2 authorization server. x/oauth2 ships no
// predefined endpoint for it.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const discordAPIBase = "https://discord.com/api/v10"

// DiscordUser is the part of Discord's /users/@me response the portal uses.
type DiscordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
}

// AvatarURL is the CDN URL of the user's avatar, or empty if they have none.
func (u *DiscordUser) AvatarURL() string {
	if u.ID == "" || u.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", u.ID, u.Avatar)
}

// DisplayName prefers the global display name over the username.
func (u *DiscordUser) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// DiscordProvider wraps golang.org/x/oauth2 for Discord's authorization code flow.
type DiscordProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewDiscordProvider requests the "identify" and "email" scopes. callbackURL
// must match a redirect registered on the Discord application exactly.
func NewDiscordProvider(clientID, clientSecret, callbackURL string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"identify", "email"},
			Endpoint:     discordEndpoint,
		},
		apiBase: discordAPIBase,
	}
}

// AuthURL returns the URL to send the user to. state is echoed back on the
// callback and must match the oauth_state cookie.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the user's Discord profile.
//
// A profile without an id is returned as-is; the caller decides what a login
// without an identity means. A present id that is not a Discord snowflake is
// an error.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building Discord /users/@me request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Discord /users/@me: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Discord /users/@me returned status %d", resp.StatusCode)
	}

	var user DiscordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decoding Discord /users/@me response: %w", err)
	}

	if user.ID != "" && !IsSnowflake(user.ID) {
		return nil, fmt.Errorf("auth: Discord returned a malformed user id %q", user.ID)
	}
	return &user, nil
}

// IsSnowflake reports whether id looks like a Discord snowflake: 17 to 20
// decimal digits.
func IsSnowflake(id string) bool {
	if len(id) < 17 || len(id) > 20 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
