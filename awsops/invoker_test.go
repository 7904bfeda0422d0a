package awsops

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/smithy-go"

	"github.com/checkward/checkward/validation"
)

type fakeCloudTrail struct {
	trails       []cttypes.Trail
	status       *cloudtrail.GetTrailStatusOutput
	describeErr  error
	statusErr    error
	describeHits int
	statusInputs []string
}

func (f *fakeCloudTrail) DescribeTrails(_ context.Context, _ *cloudtrail.DescribeTrailsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error) {
	f.describeHits++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &cloudtrail.DescribeTrailsOutput{TrailList: f.trails}, nil
}

func (f *fakeCloudTrail) GetTrailStatus(_ context.Context, params *cloudtrail.GetTrailStatusInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.GetTrailStatusOutput, error) {
	f.statusInputs = append(f.statusInputs, aws.ToString(params.Name))
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeCloudTrail) LookupEvents(_ context.Context, _ *cloudtrail.LookupEventsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error) {
	return &cloudtrail.LookupEventsOutput{}, nil
}

type throttlingLogs struct {
	failures int
	calls    int
}

func (f *throttlingLogs) DescribeLogGroups(_ context.Context, _ *cloudwatchlogs.DescribeLogGroupsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "rate exceeded"}
	}
	return &cloudwatchlogs.DescribeLogGroupsOutput{}, nil
}

type deniedCloudWatch struct{}

func (deniedCloudWatch) DescribeAlarms(_ context.Context, _ *cloudwatch.DescribeAlarmsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error) {
	return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "not authorized"}
}

func testInvoker(clients *Clients) *Invoker {
	return NewInvoker(func(aws.Config) *Clients { return clients })
}

func testSession() validation.Session {
	return &ExecutionContext{AccountID: "123456789012"}
}

func TestInvokeRegisteredOperation(t *testing.T) {
	ct := &fakeCloudTrail{trails: []cttypes.Trail{
		{Name: aws.String("main"), IsMultiRegionTrail: aws.Bool(true)},
	}}
	inv := testInvoker(&Clients{CloudTrail: ct})

	resp, err := inv.Invoke(context.Background(), testSession(), "cloudtrail", "describe_trails", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	out, ok := resp.(*cloudtrail.DescribeTrailsOutput)
	if !ok {
		t.Fatalf("unexpected response type %T", resp)
	}
	if len(out.TrailList) != 1 {
		t.Errorf("expected 1 trail, got %d", len(out.TrailList))
	}
}

func TestInvokeUnsupportedOperation(t *testing.T) {
	inv := testInvoker(&Clients{})

	_, err := inv.Invoke(context.Background(), testSession(), "organizations", "list_accounts", nil)
	var unsupported *validation.UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
	if unsupported.Service != "organizations" || unsupported.Operation != "list_accounts" {
		t.Errorf("unexpected error detail: %+v", unsupported)
	}
}

func TestInvokeRejectsForeignSession(t *testing.T) {
	inv := testInvoker(&Clients{})
	if _, err := inv.Invoke(context.Background(), "not-a-context", "cloudtrail", "describe_trails", nil); err == nil {
		t.Error("expected error for foreign session type")
	}
}

func TestInvokeSentinelResolution(t *testing.T) {
	ct := &fakeCloudTrail{
		trails: []cttypes.Trail{{Name: aws.String("main")}, {Name: aws.String("backup")}},
		status: &cloudtrail.GetTrailStatusOutput{IsLogging: aws.Bool(true)},
	}
	inv := testInvoker(&Clients{CloudTrail: ct})

	params := map[string]any{"name": "auto_detect_first_trail"}
	resp, err := inv.Invoke(context.Background(), testSession(), "cloudtrail", "get_trail_status", params)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if _, ok := resp.(*cloudtrail.GetTrailStatusOutput); !ok {
		t.Fatalf("unexpected response type %T", resp)
	}
	if len(ct.statusInputs) != 1 || ct.statusInputs[0] != "main" {
		t.Errorf("expected status call for first trail, got %v", ct.statusInputs)
	}
	// Caller's parameter map must not be mutated
	if params["name"] != "auto_detect_first_trail" {
		t.Errorf("input params mutated: %v", params)
	}
}

func TestInvokeSentinelEmptyListing(t *testing.T) {
	ct := &fakeCloudTrail{} // no trails
	inv := testInvoker(&Clients{CloudTrail: ct})

	_, err := inv.Invoke(context.Background(), testSession(), "cloudtrail", "get_trail_status",
		map[string]any{"name": "auto_detect_first_trail"})

	var invErr *validation.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
	if !invErr.Precondition {
		t.Error("expected precondition failure for empty listing")
	}
	if len(ct.statusInputs) != 0 {
		t.Errorf("main call should not have run, got %v", ct.statusInputs)
	}
}

func TestInvokeUnknownSentinel(t *testing.T) {
	inv := testInvoker(&Clients{CloudTrail: &fakeCloudTrail{}})

	_, err := inv.Invoke(context.Background(), testSession(), "cloudtrail", "get_trail_status",
		map[string]any{"name": "auto_detect_newest_trail"})

	var invErr *validation.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
	if invErr.Precondition {
		t.Error("unknown sentinel is a configuration defect, not a precondition failure")
	}
}

func TestInvokeRetriesThrottling(t *testing.T) {
	logs := &throttlingLogs{failures: 1}
	inv := testInvoker(&Clients{Logs: logs})

	_, err := inv.Invoke(context.Background(), testSession(), "logs", "describe_log_groups", nil)
	if err != nil {
		t.Fatalf("Invoke failed despite retry: %v", err)
	}
	if logs.calls != 2 {
		t.Errorf("expected 2 calls (1 throttle + 1 success), got %d", logs.calls)
	}
}

func TestInvokeDoesNotRetryPermanentFailure(t *testing.T) {
	inv := testInvoker(&Clients{CloudWatch: deniedCloudWatch{}})

	_, err := inv.Invoke(context.Background(), testSession(), "cloudwatch", "describe_alarms", nil)
	var invErr *validation.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}
}

func TestThrottledClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttling exception", &smithy.GenericAPIError{Code: "ThrottlingException"}, true},
		{"request limit", &smithy.GenericAPIError{Code: "RequestLimitExceeded"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := throttled(tt.err); got != tt.want {
				t.Errorf("throttled(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
