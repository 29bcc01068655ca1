package configuration

import (
	"fmt"
	"os"
	"strings"
)

// providerDefaults are the public endpoints and content limits of each supported platform.
var providerDefaults = map[string]Provider{
	"facebook": {
		AuthURL:     "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL:    "https://graph.facebook.com/v19.0/oauth/access_token",
		APIBaseURL:  "https://graph.facebook.com/v19.0",
		Scopes:      []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts", "read_insights", "ads_management"},
		MaxCaption:  63206,
		MaxHashtags: 10,
	},
	"instagram": {
		AuthURL:     "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL:    "https://graph.facebook.com/v19.0/oauth/access_token",
		APIBaseURL:  "https://graph.facebook.com/v19.0",
		Scopes:      []string{"instagram_basic", "instagram_content_publish", "instagram_manage_insights", "pages_show_list"},
		MaxCaption:  2200,
		MaxHashtags: 30,
	},
	"tiktok": {
		AuthURL:     "https://www.tiktok.com/v2/auth/authorize/",
		TokenURL:    "https://open.tiktokapis.com/v2/oauth/token/",
		RevokeURL:   "https://open.tiktokapis.com/v2/oauth/revoke/",
		APIBaseURL:  "https://open.tiktokapis.com/v2",
		Scopes:      []string{"user.info.basic", "video.upload", "video.publish"},
		MaxCaption:  2200,
		MaxHashtags: 5,
	},
	"linkedin": {
		AuthURL:     "https://www.linkedin.com/oauth/v2/authorization",
		TokenURL:    "https://www.linkedin.com/oauth/v2/accessToken",
		RevokeURL:   "https://www.linkedin.com/oauth/v2/revoke",
		APIBaseURL:  "https://api.linkedin.com",
		Scopes:      []string{"openid", "profile", "w_member_social"},
		MaxCaption:  3000,
		MaxHashtags: 5,
	},
	"twitter": {
		AuthURL:     "https://twitter.com/i/oauth2/authorize",
		TokenURL:    "https://api.twitter.com/2/oauth2/token",
		RevokeURL:   "https://api.twitter.com/2/oauth2/revoke",
		APIBaseURL:  "https://api.twitter.com/2",
		UploadURL:   "https://upload.twitter.com/1.1/media/upload.json",
		Scopes:      []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
		MaxCaption:  280,
		MaxHashtags: 2,
	},
	"youtube": {
		AuthURL:     "https://accounts.google.com/o/oauth2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		RevokeURL:   "https://oauth2.googleapis.com/revoke",
		Scopes:      []string{"https://www.googleapis.com/auth/youtube.upload", "https://www.googleapis.com/auth/youtube.readonly"},
		MaxCaption:  5000,
		MaxHashtags: 15,
	},
	"mastodon": {
		Server:      "https://mastodon.social",
		Scopes:      []string{"read", "write"},
		MaxCaption:  500,
		MaxHashtags: 4,
	},
}

func initProviders(C *Config) {
	if C.Providers == nil {
		C.Providers = map[string]Provider{}
	}
	scheme := "http"
	if C.App.TLSEnabled {
		scheme = "https"
	}
	for name, def := range providerDefaults {
		p := C.Providers[name]
		env := strings.ToUpper(name)
		p.ClientID = getConfigValue(p.ClientID, env+"_CLIENT_ID", "")
		p.ClientSecret = getConfigValue(p.ClientSecret, env+"_CLIENT_SECRET", "")
		defaultRedirect := fmt.Sprintf("%s://localhost:%d/oauth/callback/%s", scheme, C.App.Port, name)
		p.RedirectURI = getConfigValue(p.RedirectURI, env+"_REDIRECT_URL", defaultRedirect)
		if C.App.TLSEnabled && !hasHTTPS(p.RedirectURI) {
			p.RedirectURI = toHTTPSCallback(p.RedirectURI)
		}
		p.Server = getConfigValue(p.Server, env+"_SERVER", def.Server)
		if p.AuthURL == "" {
			p.AuthURL = def.AuthURL
		}
		if p.TokenURL == "" {
			p.TokenURL = def.TokenURL
		}
		if p.RevokeURL == "" {
			p.RevokeURL = def.RevokeURL
		}
		if p.APIBaseURL == "" {
			p.APIBaseURL = def.APIBaseURL
		}
		if p.UploadURL == "" {
			p.UploadURL = def.UploadURL
		}
		if len(p.Scopes) == 0 {
			p.Scopes = def.Scopes
		}
		if p.MaxCaption == 0 {
			p.MaxCaption = def.MaxCaption
		}
		if p.MaxHashtags == 0 {
			p.MaxHashtags = def.MaxHashtags
		}
		C.Providers[name] = p
	}
}

// getConfigValue prefers the environment, then a non placeholder config value, then the default.
func getConfigValue(configValue, envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return defaultValue
}

func hasHTTPS(u string) bool { return strings.HasPrefix(u, "https://") }

func toHTTPSCallback(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}
