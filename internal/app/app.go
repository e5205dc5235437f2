package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jun/stravastats/internal/adapter"
	"github.com/jun/stravastats/internal/adapter/memory"
	"github.com/jun/stravastats/internal/adapter/strava"
	"github.com/jun/stravastats/internal/auth"
	"github.com/jun/stravastats/internal/cache"
	"github.com/jun/stravastats/internal/config"
	"github.com/jun/stravastats/internal/crypto"
	"github.com/jun/stravastats/internal/dashboard"
	"github.com/jun/stravastats/internal/handler"
	"github.com/jun/stravastats/internal/logging"
	"github.com/jun/stravastats/internal/model"
	"github.com/jun/stravastats/internal/secret"
	"github.com/jun/stravastats/internal/session"
)

var errEmptySecret = errors.New("secret is empty")

// secretCacheTTL bounds how long resolved parameters are reused by a warm Lambda.
const secretCacheTTL = 15 * time.Minute

// HybridProvider serves demo sessions from the in-memory provider and
// everything else from the Strava API.
type HybridProvider struct {
	stravaProvider adapter.ActivityProvider
	memoryProvider adapter.ActivityProvider
}

func (h *HybridProvider) Resolve(ctx context.Context, sessionID string) (adapter.ActivityProvider, error) {
	if strings.HasPrefix(sessionID, handler.DemoSessionPrefix) {
		return h.memoryProvider, nil
	}
	return h.stravaProvider, nil
}

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler      *handler.AuthHandler
	dashboardHandler *handler.DashboardHandler
	settings         handler.Settings
	apiGatewaySecret string
	log              zerolog.Logger
}

// Deps are the pieces NewApp would otherwise build from AWS. Tests and the
// memory backend pass them directly to New.
type Deps struct {
	Store    session.Store
	Locker   session.Locker
	Resolver secret.Resolver
	Provider adapter.ActivityProvider // nil means the Strava client
}

// NewApp loads the AWS SDK configuration and builds the application for cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		logger.Info().Msg("Using in-memory session store and locks (STORAGE_BACKEND=memory)")
		return New(ctx, cfg, Deps{
			Store:    session.NewMemoryStore(),
			Locker:   session.NewMemoryLocker(),
			Resolver: secret.NewEnvResolver(),
		}, logger)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	var enc crypto.Encryptor
	var resolver secret.Resolver
	if cfg.DevMode {
		logger.Info().Msg("Using MockEncryptor and EnvResolver (DEV_MODE=true)")
		enc = crypto.NewMockEncryptor()
		resolver = secret.NewEnvResolver()
	} else {
		enc = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.Storage.KMSKeyID)
		resolver = secret.NewCachingResolver(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)), secretCacheTTL)
	}

	return New(ctx, cfg, Deps{
		Store:    session.NewDynamoStore(dynamoClient, cfg.Storage.SessionsTable, enc),
		Locker:   session.NewDynamoLocker(dynamoClient, cfg.Storage.SessionLocksTable),
		Resolver: resolver,
	}, logger)
}

// New wires the application from explicit dependencies.
func New(ctx context.Context, cfg *config.Config, deps Deps, logger zerolog.Logger) (*App, error) {
	policy, err := cache.ParsePolicy(cfg.Cache.StalePolicy)
	if err != nil {
		return nil, err
	}

	clientSecret, err := deps.Resolver.GetSecret(ctx, cfg.Strava.ClientSecretParam)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve STRAVA_CLIENT_SECRET")
	}

	jwtSecret, err := deps.Resolver.GetSecret(ctx, cfg.Auth.JWTSecretParam)
	if err != nil || jwtSecret == "" {
		if !cfg.DevMode {
			return nil, fmt.Errorf("failed to resolve JWT secret: %w", err)
		}
		logger.Warn().Err(err).Msg("JWT secret missing, using development default")
		jwtSecret = "default-dev-secret"
	}

	apiGatewaySecret, err := deps.Resolver.GetSecret(ctx, cfg.Auth.APIGatewaySecretParam)
	if err == nil && apiGatewaySecret == "" {
		err = errEmptySecret
	}
	if err != nil && !cfg.DevMode {
		return nil, fmt.Errorf("failed to resolve API gateway secret: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Strava.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Endpoint:     auth.Endpoint,
	}
	manager := auth.NewManager(auth.Config{
		OAuth:         oauthConfig,
		RefreshBuffer: cfg.Auth.RefreshBuffer,
		HTTPTimeout:   cfg.Strava.RequestTimeout,
	}, deps.Store, deps.Locker, logger)

	provider := deps.Provider
	if provider == nil {
		provider = strava.NewClient(strava.Config{
			BaseURL: cfg.Strava.APIBaseURL,
			Timeout: cfg.Strava.RequestTimeout,
		}, logger)
	}
	providers := &HybridProvider{
		stravaProvider: provider,
		memoryProvider: memory.NewDemoProvider(uint64(time.Now().UnixNano()), model.Today(), memory.DemoHistoryDays),
	}

	rangeCache := cache.New(deps.Store, deps.Locker, policy, logger)
	service := dashboard.NewService(manager, providers, rangeCache, dashboard.Config{
		MaxActivities: cfg.Strava.MaxActivities,
	}, logger)

	settings := handler.Settings{
		JWTSecret:   jwtSecret,
		FrontendURL: cfg.Auth.FrontendURL,
		DevMode:     cfg.DevMode,
	}

	return &App{
		authHandler:      handler.NewAuthHandler(manager, providers, settings, logger),
		dashboardHandler: handler.NewDashboardHandler(service, settings, logger),
		settings:         settings,
		apiGatewaySecret: apiGatewaySecret,
		log:              logger,
	}, nil
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimPrefix(req.Path, "/api")
	method := req.HTTPMethod

	sessionID, _ := handler.GetSessionID(req, app.settings.JWTSecret)
	ctx = logging.WithRequest(ctx, app.log, sessionID)
	log := zerolog.Ctx(ctx)
	log.Debug().Str("method", method).Str("path", path).Msg("Request")

	if method == http.MethodOptions {
		return app.cors(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Requests must come through CloudFront, which adds the shared secret.
	if !app.settings.DevMode && path != "/healthz" {
		if !app.originVerified(req) {
			log.Warn().Msg("Missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	type route struct{ method, path string }
	var h func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
	switch (route{method, path}) {
	case route{http.MethodGet, "/auth/login"}:
		h = app.authHandler.Login
	case route{http.MethodGet, "/auth/callback"}:
		h = app.authHandler.Callback
	case route{http.MethodGet, "/auth/demo-login"}:
		h = app.authHandler.DemoLogin
	case route{http.MethodPost, "/auth/logout"}:
		h = app.authHandler.Logout
	case route{http.MethodGet, "/auth/athlete"}:
		h = app.authHandler.Athlete
	case route{http.MethodGet, "/dashboard"}:
		h = app.dashboardHandler.Get
	case route{http.MethodGet, "/healthz"}:
		h = handler.Health
	default:
		return app.cors(events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}), nil
	}

	resp, err := h(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("Handler error")
		resp = events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return app.cors(resp), nil
}

// originVerified reports whether req carries the CloudFront shared secret.
// An unset secret never matches.
func (app *App) originVerified(req events.APIGatewayProxyRequest) bool {
	if app.apiGatewaySecret == "" {
		return false
	}
	got := req.Headers["X-Origin-Verify"]
	if got == "" {
		got = req.Headers["x-origin-verify"]
	}
	return got == app.apiGatewaySecret
}

// cors adds CORS headers to an API Gateway response.
func (app *App) cors(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	origin := app.settings.FrontendURL
	if origin == "" {
		origin = "http://localhost:3000"
	}
	resp.Headers["Access-Control-Allow-Origin"] = origin
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}
