// Package secret resolves credentials (OAuth client secret, JWT signing key)
// from SSM Parameter Store in production or the environment in dev mode.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/sync/singleflight"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches SecureString parameters with decryption.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads the variable named by the last path segment of the
// parameter, e.g. "/stravastats/strava-client-secret" -> STRAVA_CLIENT_SECRET.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val, ok := r.lookup(envName)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

func paramNameToEnvVar(name string) string {
	name = strings.TrimRight(name, "/")
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

type cachedSecret struct {
	value   string
	fetched time.Time
}

// CachingResolver memoizes another Resolver for ttl so warm Lambda
// invocations skip the SSM round trip. Concurrent misses share one lookup.
type CachingResolver struct {
	next  Resolver
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{next: next, ttl: ttl, now: time.Now, cache: make(map[string]cachedSecret)}
}

func (c *CachingResolver) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	hit, ok := c.cache[name]
	c.mu.RUnlock()
	if ok && c.now().Sub(hit.fetched) < c.ttl {
		return hit.value, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		val, err := c.next.GetSecret(ctx, name)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[name] = cachedSecret{value: val, fetched: c.now()}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
