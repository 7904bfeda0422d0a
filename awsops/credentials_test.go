package awsops

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
)

type fakeSTS struct {
	err    error
	inputs []*sts.AssumeRoleInput
}

func (f *fakeSTS) AssumeRole(_ context.Context, params *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIATEST"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      aws.Time(time.Now().Add(time.Hour)),
		},
	}, nil
}

func baseConfig() aws.Config {
	return aws.Config{Region: "us-east-1"}
}

func TestAcquireSameAccountPassthrough(t *testing.T) {
	stsClient := &fakeSTS{}
	p := NewSTSCredentialProviderWithClient(baseConfig(), stsClient)

	session, err := p.Acquire(context.Background(), "123456789012", "eu-west-1", "", "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ec, ok := session.(*ExecutionContext)
	if !ok {
		t.Fatalf("unexpected session type %T", session)
	}
	if ec.Config.Region != "eu-west-1" {
		t.Errorf("region = %s, want eu-west-1", ec.Config.Region)
	}
	if !ec.ExpiresAt.IsZero() {
		t.Error("passthrough context should not be time-boxed")
	}
	if len(stsClient.inputs) != 0 {
		t.Errorf("expected no assume-role call, got %d", len(stsClient.inputs))
	}
}

func TestAcquireAssumesRole(t *testing.T) {
	stsClient := &fakeSTS{}
	p := NewSTSCredentialProviderWithClient(baseConfig(), stsClient)

	session, err := p.Acquire(context.Background(), "999999999999", "us-west-2",
		"arn:aws:iam::999999999999:role/ComplianceAudit", "shared-secret")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if len(stsClient.inputs) != 1 {
		t.Fatalf("expected one assume-role call, got %d", len(stsClient.inputs))
	}
	input := stsClient.inputs[0]
	if aws.ToString(input.RoleArn) != "arn:aws:iam::999999999999:role/ComplianceAudit" {
		t.Errorf("unexpected role arn: %s", aws.ToString(input.RoleArn))
	}
	if aws.ToString(input.ExternalId) != "shared-secret" {
		t.Errorf("unexpected external id: %s", aws.ToString(input.ExternalId))
	}
	if !strings.HasPrefix(aws.ToString(input.RoleSessionName), "checkward-999999999999-") {
		t.Errorf("unexpected session name: %s", aws.ToString(input.RoleSessionName))
	}

	ec := session.(*ExecutionContext)
	if ec.Config.Region != "us-west-2" {
		t.Errorf("region = %s, want us-west-2", ec.Config.Region)
	}
	if ec.ExpiresAt.IsZero() {
		t.Error("assumed-role context should be time-boxed")
	}

	creds, err := ec.Config.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("failed to retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "AKIATEST" || creds.SessionToken != "token" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestAcquireOmitsEmptyExternalID(t *testing.T) {
	stsClient := &fakeSTS{}
	p := NewSTSCredentialProviderWithClient(baseConfig(), stsClient)

	if _, err := p.Acquire(context.Background(), "999999999999", "",
		"arn:aws:iam::999999999999:role/ComplianceAudit", ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if stsClient.inputs[0].ExternalId != nil {
		t.Error("expected ExternalId omitted when not configured")
	}
}

func TestAcquireAssumeRoleFailure(t *testing.T) {
	stsClient := &fakeSTS{err: errors.New("access denied")}
	p := NewSTSCredentialProviderWithClient(baseConfig(), stsClient)

	if _, err := p.Acquire(context.Background(), "999999999999", "",
		"arn:aws:iam::999999999999:role/ComplianceAudit", ""); err == nil {
		t.Error("expected error when assume-role fails")
	}
}
