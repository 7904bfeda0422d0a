package awsops

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// registerOperations populates the closed set of supported remote
// operations. Each entry maps a rule step's (target_service, operation)
// pair to one bound SDK call.
func registerOperations(inv *Invoker) {
	inv.register("cloudtrail", "describe_trails", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.CloudTrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
	})

	inv.register("cloudtrail", "get_trail_status", func(ctx context.Context, c *Clients, params map[string]any) (any, error) {
		name, err := stringParam(params, "name")
		if err != nil {
			return nil, err
		}
		return c.CloudTrail.GetTrailStatus(ctx, &cloudtrail.GetTrailStatusInput{
			Name: aws.String(name),
		})
	})

	inv.register("cloudtrail", "lookup_events", func(ctx context.Context, c *Clients, params map[string]any) (any, error) {
		return c.CloudTrail.LookupEvents(ctx, &cloudtrail.LookupEventsInput{
			MaxResults: aws.Int32(int32Param(params, "max_results", 50)),
		})
	})

	inv.register("logs", "describe_log_groups", func(ctx context.Context, c *Clients, params map[string]any) (any, error) {
		return c.Logs.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
			Limit: aws.Int32(int32Param(params, "limit", 50)),
		})
	})

	inv.register("cloudwatch", "describe_alarms", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.CloudWatch.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{})
	})

	inv.register("kms", "list_keys", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.KMS.ListKeys(ctx, &kms.ListKeysInput{})
	})

	inv.register("kms", "list_aliases", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.KMS.ListAliases(ctx, &kms.ListAliasesInput{})
	})

	inv.register("sns", "list_topics", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.SNS.ListTopics(ctx, &sns.ListTopicsInput{})
	})

	inv.register("s3", "list_buckets", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	})

	inv.register("securityhub", "get_findings", func(ctx context.Context, c *Clients, params map[string]any) (any, error) {
		return c.SecurityHub.GetFindings(ctx, &securityhub.GetFindingsInput{
			MaxResults: aws.Int32(int32Param(params, "max_results", 100)),
		})
	})

	inv.register("acm", "list_certificates", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.ACM.ListCertificates(ctx, &acm.ListCertificatesInput{})
	})

	inv.register("rds", "describe_db_instances", func(ctx context.Context, c *Clients, _ map[string]any) (any, error) {
		return c.RDS.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{})
	})
}

// registerResolvers populates the sentinel pre-resolution lookups.
func registerResolvers(inv *Invoker) {
	inv.registerResolver("auto_detect_first_trail", func(ctx context.Context, c *Clients) (string, error) {
		out, err := c.CloudTrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
		if err != nil {
			return "", err
		}
		if len(out.TrailList) == 0 {
			return "", nil
		}
		return aws.ToString(out.TrailList[0].Name), nil
	})
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}

// int32Param reads a numeric parameter, tolerating the float64 values that
// JSON-decoded rule documents carry.
func int32Param(params map[string]any, key string, fallback int32) int32 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int32(n)
	case int:
		return int32(n)
	case int32:
		return n
	case int64:
		return int32(n)
	default:
		return fallback
	}
}
