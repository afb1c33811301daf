package config

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/clientcredentials"
)

// ResolveCredential turns a declared Credential into an API key/bearer
// token string. Env and Inline resolve locally; OAuth2ClientCreds performs
// a client-credentials token exchange, for providers (e.g. Gemini on
// Vertex) that authenticate with a service account instead of a static key.
func ResolveCredential(ctx context.Context, name string, cred Credential) (string, error) {
	switch {
	case cred.OAuth2ClientCreds != nil:
		oc := cred.OAuth2ClientCreds
		clientID := os.Getenv(oc.ClientIDEnv)
		clientSecret := os.Getenv(oc.ClientSecretEnv)
		if clientID == "" || clientSecret == "" {
			return "", fmt.Errorf("config: credential %q: %s/%s must be set", name, oc.ClientIDEnv, oc.ClientSecretEnv)
		}
		conf := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     oc.TokenURL,
			Scopes:       oc.Scopes,
		}
		token, err := conf.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("config: credential %q: oauth2 token exchange: %w", name, err)
		}
		return token.AccessToken, nil
	case cred.Env != "":
		v := os.Getenv(cred.Env)
		if v == "" {
			return "", fmt.Errorf("config: credential %q: environment variable %s is not set", name, cred.Env)
		}
		return v, nil
	case cred.Inline != "":
		return cred.Inline, nil
	default:
		return "", fmt.Errorf("config: credential %q: no env, inline, or oauth2_client_credentials set", name)
	}
}

// ResolveAll resolves every credential in cfg, returning a name -> token map.
func ResolveAll(ctx context.Context, cfg Config) (map[string]string, error) {
	out := make(map[string]string, len(cfg.Credentials))
	for name, cred := range cfg.Credentials {
		token, err := ResolveCredential(ctx, name, cred)
		if err != nil {
			return nil, err
		}
		out[name] = token
	}
	return out, nil
}
