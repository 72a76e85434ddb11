package session

import (
	"context"
	"errors"
	"go/format"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubConfigLoad(t *testing.T, fn func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error)) {
	t.Helper()
	original := configLoadFunc
	configLoadFunc = fn
	t.Cleanup(func() { configLoadFunc = original })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "_id", cfg.IDAttribute)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Zero(t, cfg.RequestsPerSecond)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minq.yaml")
	data := []byte(`
region: eu-west-1
endpoint: http://localhost:8000
access_key_id: local
secret_access_key: secret
http_timeout: 5s
requests_per_second: 25
max_concurrency: 4
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://localhost:8000", cfg.Endpoint)
	assert.Equal(t, "local", cfg.AccessKeyID)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 25.0, cfg.RequestsPerSecond)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	// defaults survive
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "_id", cfg.IDAttribute)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("region: [unclosed"))
	assert.Error(t, err)
}

func TestNewSession_LoadError(t *testing.T) {
	stubConfigLoad(t, func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	})

	_, err := NewSession(DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load AWS config")
}

func TestNewSession_StaticCredentials(t *testing.T) {
	var loaded config.LoadOptions
	stubConfigLoad(t, func(_ context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&loaded))
		}
		return aws.Config{Region: loaded.Region, Credentials: loaded.Credentials}, nil
	})

	cfg := DefaultConfig()
	cfg.Region = "us-west-2"
	cfg.Endpoint = "http://localhost:8000"
	cfg.AccessKeyID = "AKID"
	cfg.SecretAccessKey = "SECRET"

	sess, err := NewSession(cfg)
	require.NoError(t, err)

	client, err := sess.Client()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, "us-west-2", sess.AWSConfig().Region)
	assert.Same(t, cfg, sess.Config())

	creds, err := loaded.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, 3, loaded.RetryMaxAttempts)
}

func TestNewSession_AssumeRole(t *testing.T) {
	stubConfigLoad(t, func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	})

	cfg := DefaultConfig()
	cfg.RoleARN = "arn:aws:iam::123456789012:role/reader"
	cfg.ExternalID = "ext"

	sess, err := NewSession(cfg)
	require.NoError(t, err)
	assert.IsType(t, &aws.CredentialsCache{}, sess.AWSConfig().Credentials)
}

func TestSession_NilClient(t *testing.T) {
	var s *Session
	_, err := s.Client()
	assert.Error(t, err)

	_, err = (&Session{}).Client()
	assert.Error(t, err)
}

func TestSourceIsFormatted(t *testing.T) {
	src, err := os.ReadFile("session.go")
	require.NoError(t, err)

	formatted, err := format.Source(src)
	require.NoError(t, err)
	assert.Equal(t, string(formatted), string(src))
}
