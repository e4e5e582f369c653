package paramstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type ssmAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMSource reads parameters from AWS Systems Manager Parameter Store.
type SSMSource struct {
	client ssmAPI
}

func NewSSMSource(ctx context.Context, cfg *Config) (*SSMSource, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &SSMSource{client: ssm.NewFromConfig(awsCfg)}, nil
}

func (s *SSMSource) GetParameters(ctx context.Context, names []string) (map[string]string, error) {
	out, err := s.client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	if len(out.InvalidParameters) > 0 {
		logger.Warn().Strs("names", out.InvalidParameters).Msg("Parameters not found")
	}

	res := make(map[string]string, len(out.Parameters))
	for _, p := range out.Parameters {
		res[aws.ToString(p.Name)] = aws.ToString(p.Value)
	}
	return res, nil
}
