package claude

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// stsPreflight verifies host AWS credentials before any container work, so
// a broken credential chain fails with the AWS diagnostic instead of an
// opaque error inside the container. Returns the caller ARN. Replaceable
// in tests.
var stsPreflight = func(ctx context.Context, region string) (string, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}

	out, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("verifying AWS credentials: %w", err)
	}
	return aws.ToString(out.Arn), nil
}
