// Package secrets resolves credential references. A reference is either
// a literal value, "env:NAME" for an environment variable, or
// "aws-sm:secret-id[#json-key]" for AWS Secrets Manager, so client
// secrets never have to live in config files.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const (
	envPrefix   = "env:"
	awsSMPrefix = "aws-sm:"
)

// ErrEmptySecret is returned when a reference resolves to nothing.
var ErrEmptySecret = errors.New("secrets: reference resolved to an empty value")

// ManagerAPI is the slice of the AWS Secrets Manager client this
// package uses. The concrete SDK client satisfies it.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver turns references into secret values. The AWS client is
// built lazily on first aws-sm reference so literal and env
// resolution never touch AWS configuration.
type Resolver struct {
	api    ManagerAPI
	logger *slog.Logger
}

// NewResolver builds a resolver. api may be nil, in which case the
// default AWS configuration chain is loaded on first use.
func NewResolver(api ManagerAPI, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{api: api, logger: logger}
}

// Resolve dereferences ref. Literal values pass through unchanged.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		return r.resolveEnv(strings.TrimPrefix(ref, envPrefix))
	case strings.HasPrefix(ref, awsSMPrefix):
		return r.resolveAWS(ctx, strings.TrimPrefix(ref, awsSMPrefix))
	default:
		if ref == "" {
			return "", ErrEmptySecret
		}

		return ref, nil
	}
}

func (r *Resolver) resolveEnv(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("secrets: environment variable %s is not set", name)
	}

	if v == "" {
		return "", fmt.Errorf("%w: env:%s", ErrEmptySecret, name)
	}

	return v, nil
}

// resolveAWS fetches a secret by ID. A "#key" suffix selects one field
// of a JSON secret.
func (r *Resolver) resolveAWS(ctx context.Context, spec string) (string, error) {
	secretID, jsonKey, _ := strings.Cut(spec, "#")
	if secretID == "" {
		return "", errors.New("secrets: aws-sm reference has no secret id")
	}

	api, err := r.managerAPI(ctx)
	if err != nil {
		return "", err
	}

	r.logger.Debug("fetching secret", slog.String("secret_id", secretID))

	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: fetching %s: %w", secretID, err)
	}

	value := aws.ToString(out.SecretString)
	if value == "" {
		return "", fmt.Errorf("%w: aws-sm:%s", ErrEmptySecret, secretID)
	}

	if jsonKey == "" {
		return value, nil
	}

	return extractJSONKey(secretID, value, jsonKey)
}

func extractJSONKey(secretID, value, key string) (string, error) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("secrets: %s is not a JSON object: %w", secretID, err)
	}

	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("secrets: %s has no field %q", secretID, key)
	}

	if v == "" {
		return "", fmt.Errorf("%w: aws-sm:%s#%s", ErrEmptySecret, secretID, key)
	}

	return v, nil
}

func (r *Resolver) managerAPI(ctx context.Context) (ManagerAPI, error) {
	if r.api != nil {
		return r.api, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: loading AWS configuration: %w", err)
	}

	r.api = secretsmanager.NewFromConfig(cfg)

	return r.api, nil
}
