package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"partner-workspace/internal/common/config"
	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient() *Client {
	return &Client{config: &ClientConfig{
		RetryConfig: &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}}
}

// ==========================
// Retry
// ==========================

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	calls := 0
	out, err := fastClient().ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, stderrors.New("rpc error: code = Unavailable")
		}
		return "ok", nil
	}, "deploy")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := fastClient().ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("process definition not found")
	}, "create-instance")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("RESOURCE_NOT_FOUND"), se.Code)
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := fastClient().ExecuteWithRetry(context.Background(), func(context.Context) (interface{}, error) {
		calls++
		return nil, stderrors.New("context deadline exceeded")
	}, "publish")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.True(t, errors.IsRemote(err))
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		msg       string
		code      errors.ErrorCode
		retryable bool
	}{
		{"connection refused", "EXTERNAL_SERVICE_ERROR", true},
		{"deadline exceeded", "TIMEOUT_ERROR", true},
		{"job not found", "RESOURCE_NOT_FOUND", false},
		{"permission denied", "EXTERNAL_SERVICE_ERROR", false},
		{"something odd", "EXTERNAL_SERVICE_ERROR", true},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			se, ok := errors.As(mapZeebeError(stderrors.New(tt.msg), "op", 0))
			require.True(t, ok)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.retryable, se.Retryable)
		})
	}
}

func TestClientConfigFrom(t *testing.T) {
	cfg := ClientConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", Timeout: 1500, RequestTimeout: 2000})
	assert.Equal(t, "zeebe:26500", cfg.GatewayAddress)
	assert.Equal(t, 1500*time.Millisecond, cfg.ConnectionTimeout)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
}

// ==========================
// Instrumentation
// ==========================

type handlerFunc func(client worker.JobClient, job entities.Job) error

func (f handlerFunc) Handle(client worker.JobClient, job entities.Job) error { return f(client, job) }

func TestInstrument_RecordsDuration(t *testing.T) {
	const taskType = "instrument-test"
	seen := int64(0)
	h := handlerFunc(func(_ worker.JobClient, job entities.Job) error {
		seen = job.Key
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType)))
		return stderrors.New("boom")
	})

	fn := instrument(taskType, h, observability.NewNoop("test"), logger.NewTestLogger(t))
	fn(nil, entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 42, Type: taskType}})

	assert.Equal(t, int64(42), seen)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WorkerJobsActive.WithLabelValues(taskType)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.WorkerJobDuration, "worker_job_duration_seconds"))
}
