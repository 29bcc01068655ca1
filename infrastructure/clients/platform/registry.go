package platform

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// ClientFactory builds a platform adapter from its provider configuration.
type ClientFactory func(p configuration.Provider, client *http.Client, timeout time.Duration) repository.IPlatformClient

// factories is the tagged set of built-in adapters.
var factories = map[model.Platform]ClientFactory{
	model.PlatformFacebook: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewFacebookClient(p, c, t)
	},
	model.PlatformInstagram: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewInstagramClient(p, c, t)
	},
	model.PlatformTikTok: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewTikTokClient(p, c, t)
	},
	model.PlatformLinkedIn: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewLinkedInClient(p, c, t)
	},
	model.PlatformTwitter: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewTwitterClient(p, c, t)
	},
	model.PlatformYouTube: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewYouTubeClient(p, c, t)
	},
	model.PlatformMastodon: func(p configuration.Provider, c *http.Client, t time.Duration) repository.IPlatformClient {
		return NewMastodonClient(p, c, t)
	},
}

// Registry resolves adapters by platform tag.
type Registry struct {
	mu      sync.RWMutex
	oauth   map[model.Platform]repository.IOAuthProvider
	clients map[model.Platform]repository.IPlatformClient
	ads     map[model.Platform]repository.IAdsClient
}

func NewRegistry() *Registry {
	return &Registry{
		oauth:   map[model.Platform]repository.IOAuthProvider{},
		clients: map[model.Platform]repository.IPlatformClient{},
		ads:     map[model.Platform]repository.IAdsClient{},
	}
}

// NewRegistryFromConfig builds every built-in adapter. OAuth providers are only
// registered for platforms with a complete client configuration.
func NewRegistryFromConfig(providers map[string]configuration.Provider, timeout time.Duration) *Registry {
	r := NewRegistry()
	httpClient := newHTTPClient(timeout)
	for platform, build := range factories {
		p := providers[string(platform)]
		r.Register(build(p, httpClient, timeout), nil)
		if p.Configured() {
			r.RegisterOAuth(platform, NewOAuthProvider(platform, p, httpClient))
		}
	}
	r.RegisterAds(model.PlatformFacebook, NewMetaAdsClient(providers[string(model.PlatformFacebook)], httpClient, timeout))
	return r
}

// Register adds a client and, when given, its OAuth provider.
func (r *Registry) Register(client repository.IPlatformClient, oauth repository.IOAuthProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Platform()] = client
	if oauth != nil {
		r.oauth[client.Platform()] = oauth
	}
}

func (r *Registry) RegisterOAuth(p model.Platform, oauth repository.IOAuthProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauth[p] = oauth
}

func (r *Registry) RegisterAds(p model.Platform, ads repository.IAdsClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads[p] = ads
}

func (r *Registry) OAuth(p model.Platform) (repository.IOAuthProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.oauth[p]; ok {
		return o, nil
	}
	if _, ok := r.clients[p]; ok {
		return nil, fmt.Errorf("%w: %s", model.ErrConfiguration, p)
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedPlatform, p)
}

func (r *Registry) Client(p model.Platform) (repository.IPlatformClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedPlatform, p)
}

func (r *Registry) Ads(p model.Platform) (repository.IAdsClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.ads[p]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: no ads client for %s", model.ErrUnsupportedPlatform, p)
}

var _ repository.IPlatformRegistry = (*Registry)(nil)
