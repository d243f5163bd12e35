package analysis

import (
	"context"
	"net/http"
	"strings"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/proxy"
)

// Transports for direct generation
const (
	TransportREST = "rest"
	TransportSDK  = "sdk"
)

// Backend uploads files and runs generation for one credential
type Backend interface {
	Upload(ctx context.Context, f *gemini.UploadFile, onStatus gemini.StatusFunc) (*gemini.File, error)
	Generate(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error)
}

// BackendFactory builds a Backend from a credential secret
type BackendFactory func(ctx context.Context, secret string) (Backend, error)

// DirectBackend calls the provider with the caller's key. Uploads always
// use the REST client; generation may go through the SDK.
type DirectBackend struct {
	client    *gemini.Client
	generator gemini.Generator
}

// Upload implements Backend
func (b *DirectBackend) Upload(ctx context.Context, f *gemini.UploadFile, onStatus gemini.StatusFunc) (*gemini.File, error) {
	return b.client.Upload(ctx, f, onStatus)
}

// Generate implements Backend
func (b *DirectBackend) Generate(ctx context.Context, model string, req *gemini.Request) (*gemini.Response, error) {
	return b.generator.Generate(ctx, model, req)
}

// DirectFactory returns a factory for direct backends. base supplies the
// endpoints, polling and retry settings; the key comes from the credential.
func DirectFactory(base gemini.Config, transport string, httpClient *http.Client, logger *logging.Logger) BackendFactory {
	return func(ctx context.Context, key string) (Backend, error) {
		cfg := base
		cfg.APIKey = key

		opts := []gemini.Option{gemini.WithLogger(logger)}
		if httpClient != nil {
			opts = append(opts, gemini.WithHTTPClient(httpClient))
		}
		client, err := gemini.NewClient(cfg, opts...)
		if err != nil {
			return nil, err
		}

		backend := &DirectBackend{client: client, generator: client}
		if transport == TransportSDK {
			sdk, err := gemini.NewSDKGenerator(ctx, gemini.SDKConfig{
				APIKey:     key,
				BaseURL:    sdkBaseURL(cfg.BaseURL),
				HTTPClient: httpClient,
				Retry:      cfg.Retry,
				Logger:     logger,
			})
			if err != nil {
				return nil, err
			}
			backend.generator = sdk
		}
		return backend, nil
	}
}

// sdkBaseURL strips the API version, which the SDK appends itself
func sdkBaseURL(restBase string) string {
	if restBase == "" || restBase == gemini.DefaultBaseURL {
		return ""
	}
	return strings.TrimSuffix(restBase, "/v1beta") + "/"
}

// ProxyFactory returns a factory for backends that go through the proxy at url
func ProxyFactory(url string, httpClient *http.Client, logger *logging.Logger) BackendFactory {
	return func(ctx context.Context, token string) (Backend, error) {
		if url == "" {
			return nil, apperror.New(apperror.KindMissingCredential, "Analysis proxy URL is not configured")
		}
		opts := []proxy.ClientOption{proxy.WithLogger(logger)}
		if httpClient != nil {
			opts = append(opts, proxy.WithHTTPClient(httpClient))
		}
		client, err := proxy.NewClient(url, token, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
