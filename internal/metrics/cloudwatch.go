// Package metrics publishes run-level counters for the scheduled jobs to
// CloudWatch. Publishing is strictly best-effort: a metrics outage must
// never fail a rotation or notification run, so errors are logged and
// swallowed.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names, published under the configured namespace with a Job
// dimension.
const (
	metricSucceeded = "JobItemsSucceeded"
	metricFailed    = "JobItemsFailed"

	dimJob          = "Job"
	jobRotation     = "rotation"
	jobNotification = "notification"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher emits succeeded/failed counter pairs for the bulk
// rotation and notification sweep jobs. It satisfies both the rotation
// coordinator's and the notification scheduler's stats interfaces.
type CloudWatchPublisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchPublisher creates a publisher for the given namespace.
func NewCloudWatchPublisher(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// PublishRotationStats records a bulk rotation run's outcome counts.
func (p *CloudWatchPublisher) PublishRotationStats(ctx context.Context, succeeded, failed int) {
	p.publish(ctx, jobRotation, succeeded, failed)
}

// PublishNotificationStats records a notification sweep's outcome counts.
func (p *CloudWatchPublisher) PublishNotificationStats(ctx context.Context, sent, failed int) {
	p.publish(ctx, jobNotification, sent, failed)
}

func (p *CloudWatchPublisher) publish(ctx context.Context, job string, succeeded, failed int) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String(dimJob),
			Value: aws.String(job),
		},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricSucceeded),
				Value:      aws.Float64(float64(succeeded)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricFailed),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish job metrics",
			"job", job,
			"error", err,
		)
	}
}
