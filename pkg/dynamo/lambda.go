package dynamo

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/pay-theory/minq/pkg/session"
)

// lambdaDeadlineBuffer is held back from the invocation deadline for cleanup
const lambdaDeadlineBuffer = time.Second

var (
	// Global Lambda database for connection reuse across warm starts
	lambdaDB     *Database
	lambdaDBErr  error
	lambdaDBOnce sync.Once
)

// NewLambda returns a process-wide Database tuned for AWS Lambda. The first
// call builds it from the environment; later calls reuse it.
func NewLambda(opts ...Option) (*Database, error) {
	lambdaDBOnce.Do(func() {
		lambdaDB, lambdaDBErr = New(LambdaConfig(), opts...)
	})
	return lambdaDB, lambdaDBErr
}

// LambdaConfig builds a session config from the Lambda environment
func LambdaConfig() *session.Config {
	cfg := session.DefaultConfig()
	cfg.Region = lambdaRegion()
	cfg.HTTPTimeout = 5 * time.Second
	cfg.MaxConcurrency = concurrencyForMemory(LambdaMemoryMB())

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.MaxConcurrency,
			MaxIdleConnsPerHost: cfg.MaxConcurrency,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	cfg.AWSConfigOptions = append(cfg.AWSConfigOptions,
		config.WithHTTPClient(httpClient),
		config.WithRetryMode(aws.RetryModeAdaptive),
	)
	return cfg
}

// LambdaContext returns a context whose deadline leaves a cleanup buffer
// before the invocation deadline. Contexts without a deadline are returned as is.
func LambdaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-lambdaDeadlineBuffer))
}

// IsLambdaEnvironment detects if running in AWS Lambda
func IsLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// LambdaMemoryMB returns the allocated memory in MB, or 0 outside Lambda
func LambdaMemoryMB() int {
	memStr := os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")
	if memStr == "" {
		return 0
	}

	mem, err := strconv.Atoi(memStr)
	if err != nil {
		return 0
	}
	return mem
}

// RemainingTime returns the time until the context deadline, or -1 without one
func RemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	return time.Until(deadline)
}

// concurrencyForMemory scales write fan-out with the function's memory
func concurrencyForMemory(memoryMB int) int {
	switch {
	case memoryMB == 0:
		return defaultMaxConcurrency
	case memoryMB <= 512:
		return 4
	case memoryMB <= 1024:
		return 8
	default:
		return 16
	}
}

func lambdaRegion() string {
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return "us-east-1"
}
