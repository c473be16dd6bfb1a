package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	values map[string]string
	err    error
	calls  []string
}

func (f *fakeManager) GetSecretValue(
	_ context.Context,
	params *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(params.SecretId)
	f.calls = append(f.calls, id)

	if f.err != nil {
		return nil, f.err
	}

	v, ok := f.values[id]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}

	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func newTestResolver(api ManagerAPI) *Resolver {
	return NewResolver(api, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolve_Literal(t *testing.T) {
	r := newTestResolver(&fakeManager{})

	v, err := r.Resolve(context.Background(), "plain-secret-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-secret-value", v)
}

func TestResolve_EmptyLiteral(t *testing.T) {
	r := newTestResolver(&fakeManager{})

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestResolve_Env(t *testing.T) {
	t.Setenv("DRIVESCAN_TEST_SECRET", "from-env")

	r := newTestResolver(&fakeManager{})

	v, err := r.Resolve(context.Background(), "env:DRIVESCAN_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestResolve_EnvUnset(t *testing.T) {
	r := newTestResolver(&fakeManager{})

	_, err := r.Resolve(context.Background(), "env:DRIVESCAN_TEST_UNSET_VAR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRIVESCAN_TEST_UNSET_VAR")
}

func TestResolve_EnvEmpty(t *testing.T) {
	t.Setenv("DRIVESCAN_TEST_EMPTY", "")

	r := newTestResolver(&fakeManager{})

	_, err := r.Resolve(context.Background(), "env:DRIVESCAN_TEST_EMPTY")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestResolve_AWSPlainSecret(t *testing.T) {
	api := &fakeManager{values: map[string]string{
		"prod/graph/client-secret": "s3cr3t",
	}}
	r := newTestResolver(api)

	v, err := r.Resolve(context.Background(), "aws-sm:prod/graph/client-secret")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)
	assert.Equal(t, []string{"prod/graph/client-secret"}, api.calls)
}

func TestResolve_AWSJSONKey(t *testing.T) {
	api := &fakeManager{values: map[string]string{
		"prod/graph": `{"client_id":"abc","client_secret":"xyz"}`,
	}}
	r := newTestResolver(api)

	v, err := r.Resolve(context.Background(), "aws-sm:prod/graph#client_secret")
	require.NoError(t, err)
	assert.Equal(t, "xyz", v)
}

func TestResolve_AWSJSONKeyMissing(t *testing.T) {
	api := &fakeManager{values: map[string]string{
		"prod/graph": `{"client_id":"abc"}`,
	}}
	r := newTestResolver(api)

	_, err := r.Resolve(context.Background(), "aws-sm:prod/graph#client_secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_secret")
}

func TestResolve_AWSNotJSON(t *testing.T) {
	api := &fakeManager{values: map[string]string{"prod/x": "not json"}}
	r := newTestResolver(api)

	_, err := r.Resolve(context.Background(), "aws-sm:prod/x#key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JSON object")
}

func TestResolve_AWSFailure(t *testing.T) {
	api := &fakeManager{err: errors.New("AccessDeniedException")}
	r := newTestResolver(api)

	_, err := r.Resolve(context.Background(), "aws-sm:prod/locked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod/locked")
}

func TestResolve_AWSEmptyID(t *testing.T) {
	r := newTestResolver(&fakeManager{})

	_, err := r.Resolve(context.Background(), "aws-sm:")
	assert.Error(t, err)
}
