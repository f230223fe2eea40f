package stac

import (
	"context"
	"net/http"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewHTTPClient returns the client used for catalog requests. When client
// credentials are configured every request carries a bearer token fetched
// from the token endpoint; otherwise the catalog is queried anonymously.
func NewHTTPClient(ctx context.Context, cfg properties.STAC, timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	if !cfg.OAuthEnabled() {
		return base
	}

	config := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	httpClient := config.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	httpClient.Timeout = timeout
	return httpClient
}
