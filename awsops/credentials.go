package awsops

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/checkward/checkward/validation"
)

const defaultSessionDuration = time.Hour

// STSAPI is the slice of the STS client the provider uses.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSCredentialProvider acquires execution contexts for tenant accounts.
// Tenants without a role reference run on the service's own identity;
// everyone else gets time-boxed assumed-role credentials.
type STSCredentialProvider struct {
	base     aws.Config
	sts      STSAPI
	duration time.Duration
}

// NewSTSCredentialProvider builds a provider from the service's own config.
func NewSTSCredentialProvider(base aws.Config) *STSCredentialProvider {
	return &STSCredentialProvider{
		base:     base,
		sts:      sts.NewFromConfig(base),
		duration: defaultSessionDuration,
	}
}

// NewSTSCredentialProviderWithClient builds a provider with an injected STS
// client, used by tests.
func NewSTSCredentialProviderWithClient(base aws.Config, client STSAPI) *STSCredentialProvider {
	return &STSCredentialProvider{base: base, sts: client, duration: defaultSessionDuration}
}

// Acquire returns a scoped execution context for the tenant account.
func (p *STSCredentialProvider) Acquire(ctx context.Context, accountID, region, roleARN, externalID string) (validation.Session, error) {
	if region == "" {
		region = p.base.Region
	}

	if roleARN == "" {
		cfg := p.base.Copy()
		cfg.Region = region
		return &ExecutionContext{Config: cfg, AccountID: accountID}, nil
	}

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(fmt.Sprintf("checkward-%s-%d", accountID, time.Now().Unix())),
		DurationSeconds: aws.Int32(int32(p.duration.Seconds())),
	}
	if externalID != "" {
		input.ExternalId = aws.String(externalID)
	}

	out, err := p.sts.AssumeRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("assume role %s: %w", roleARN, err)
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("assume role %s returned no credentials", roleARN)
	}

	cfg := p.base.Copy()
	cfg.Region = region
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		aws.ToString(out.Credentials.AccessKeyId),
		aws.ToString(out.Credentials.SecretAccessKey),
		aws.ToString(out.Credentials.SessionToken),
	)

	ec := &ExecutionContext{Config: cfg, AccountID: accountID}
	if out.Credentials.Expiration != nil {
		ec.ExpiresAt = *out.Credentials.Expiration
	}
	return ec, nil
}
