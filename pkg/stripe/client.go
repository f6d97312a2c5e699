package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/alphacut/alphacut-backend/pkg/config"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = config.StripeEnvLive
	appName = "alphacut-backend"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// keyPrefixes lists the secret and restricted key prefixes each environment accepts.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

// Client carries the Stripe API client and the webhook signing secret for
// one environment.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
}

type credentials struct {
	env           string
	apiKey        string
	signingSecret string
}

// NewClient validates the configured credentials and builds the client. The
// resource packages used for checkout sessions and subscriptions read the
// package-level key, so it is set here and nowhere else.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	creds, err := parseCredentials(cfg)
	if err != nil {
		return nil, err
	}

	stripe.Key = creds.apiKey
	stripe.SetAppInfo(&stripe.AppInfo{Name: appName})
	if logg != nil {
		stripe.DefaultLeveledLogger = NewLeveledLogger(ctx, logg)
		if !strings.HasPrefix(creds.signingSecret, "whsec_") {
			logg.Warn(ctx, "stripe webhook secret does not look like a signing secret")
		}
		logg.Info(logg.WithField(ctx, "stripe_env", creds.env), "stripe client initialized")
	}

	return &Client{
		api:           stripe.NewClient(creds.apiKey),
		environment:   creds.env,
		signingSecret: creds.signingSecret,
	}, nil
}

func parseCredentials(cfg config.StripeConfig) (credentials, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return credentials{}, errInvalidStripeEnv
	}

	creds := credentials{
		env:           env,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		signingSecret: strings.TrimSpace(cfg.Secret),
	}
	if creds.apiKey == "" {
		return credentials{}, errAPIKeyRequired
	}
	if creds.signingSecret == "" {
		return credentials{}, errSecretRequired
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(creds.apiKey, prefix) {
			return creds, nil
		}
	}
	return credentials{}, fmt.Errorf("stripe environment %q requires a key starting with %s", env, strings.Join(prefixes, " or "))
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
