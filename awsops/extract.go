package awsops

import (
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

	"github.com/checkward/checkward/validation"
)

type extractFunc func(response any) validation.Metrics

// Extractor maps raw service responses to normalized metrics through a
// registry keyed by (service, operation). Unregistered pairs, and responses
// of an unexpected type, contribute no evidence.
type Extractor struct {
	registry map[OpKey]extractFunc
}

// NewExtractor builds the full extraction registry.
func NewExtractor() *Extractor {
	e := &Extractor{registry: make(map[OpKey]extractFunc)}

	e.registry[OpKey{"cloudtrail", "describe_trails"}] = extractTrails
	e.registry[OpKey{"cloudtrail", "get_trail_status"}] = extractTrailStatus
	e.registry[OpKey{"cloudtrail", "lookup_events"}] = extractEvents
	e.registry[OpKey{"logs", "describe_log_groups"}] = extractLogGroups
	e.registry[OpKey{"cloudwatch", "describe_alarms"}] = extractAlarms
	e.registry[OpKey{"kms", "list_keys"}] = extractKeys
	e.registry[OpKey{"kms", "list_aliases"}] = extractAliases
	e.registry[OpKey{"sns", "list_topics"}] = extractTopics
	e.registry[OpKey{"s3", "list_buckets"}] = extractBuckets
	e.registry[OpKey{"securityhub", "get_findings"}] = extractFindings
	e.registry[OpKey{"acm", "list_certificates"}] = extractCertificates
	e.registry[OpKey{"rds", "describe_db_instances"}] = extractDBInstances

	return e
}

// Extract returns the normalized metrics for one step response.
func (e *Extractor) Extract(service, operation string, response any) validation.Metrics {
	fn, ok := e.registry[OpKey{Service: service, Operation: operation}]
	if !ok {
		return validation.Metrics{}
	}
	return fn(response)
}

func extractTrails(response any) validation.Metrics {
	out, ok := response.(*cloudtrail.DescribeTrailsOutput)
	if !ok {
		return validation.Metrics{}
	}
	multiRegion := 0
	for _, t := range out.TrailList {
		if aws.ToBool(t.IsMultiRegionTrail) {
			multiRegion++
		}
	}
	return validation.Metrics{
		"trail_count":         float64(len(out.TrailList)),
		"multi_region_trails": float64(multiRegion),
	}
}

func extractTrailStatus(response any) validation.Metrics {
	out, ok := response.(*cloudtrail.GetTrailStatusOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"trail_logging": bool01(aws.ToBool(out.IsLogging)),
	}
}

func extractEvents(response any) validation.Metrics {
	out, ok := response.(*cloudtrail.LookupEventsOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"recent_event_count": float64(len(out.Events)),
	}
}

func extractLogGroups(response any) validation.Metrics {
	out, ok := response.(*cloudwatchlogs.DescribeLogGroupsOutput)
	if !ok {
		return validation.Metrics{}
	}
	withRetention := 0
	longRetention := 0
	for _, g := range out.LogGroups {
		if g.RetentionInDays == nil {
			continue
		}
		withRetention++
		if *g.RetentionInDays >= 365 {
			longRetention++
		}
	}
	return validation.Metrics{
		"log_group_count":       float64(len(out.LogGroups)),
		"groups_with_retention": float64(withRetention),
		"long_retention_groups": float64(longRetention),
	}
}

func extractAlarms(response any) validation.Metrics {
	out, ok := response.(*cloudwatch.DescribeAlarmsOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"cloudwatch_alarms": float64(len(out.MetricAlarms)),
	}
}

func extractKeys(response any) validation.Metrics {
	out, ok := response.(*kms.ListKeysOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"kms_key_count": float64(len(out.Keys)),
	}
}

func extractAliases(response any) validation.Metrics {
	out, ok := response.(*kms.ListAliasesOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"key_aliases": float64(len(out.Aliases)),
	}
}

func extractTopics(response any) validation.Metrics {
	out, ok := response.(*sns.ListTopicsOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"sns_topic_count": float64(len(out.Topics)),
	}
}

func extractBuckets(response any) validation.Metrics {
	out, ok := response.(*s3.ListBucketsOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"s3_bucket_count": float64(len(out.Buckets)),
	}
}

func extractFindings(response any) validation.Metrics {
	out, ok := response.(*securityhub.GetFindingsOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"finding_count": float64(len(out.Findings)),
	}
}

func extractCertificates(response any) validation.Metrics {
	out, ok := response.(*acm.ListCertificatesOutput)
	if !ok {
		return validation.Metrics{}
	}
	return validation.Metrics{
		"certificate_count": float64(len(out.CertificateSummaryList)),
	}
}

func extractDBInstances(response any) validation.Metrics {
	out, ok := response.(*rds.DescribeDBInstancesOutput)
	if !ok {
		return validation.Metrics{}
	}
	encrypted := 0
	for _, db := range out.DBInstances {
		if aws.ToBool(db.StorageEncrypted) {
			encrypted++
		}
	}
	return validation.Metrics{
		"rds_instance_count":      float64(len(out.DBInstances)),
		"encrypted_rds_instances": float64(encrypted),
	}
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
