package config

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/sirupsen/logrus"
)

// SecretGetter is the slice of the Secrets Manager API used here.
type SecretGetter interface {
	GetSecretValue(*secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
}

// ResolveSecrets replaces the bot password with the value stored in AWS
// Secrets Manager when Bot.PasswordFromSecrets is set.
func ResolveSecrets(cfg *Config, logger *logrus.Logger) error {
	if !cfg.Bot.PasswordFromSecrets {
		return nil
	}

	svc, err := newSecretsClient(&cfg.AWS)
	if err != nil {
		return err
	}
	return resolveWith(cfg, svc, logger)
}

func resolveWith(cfg *Config, svc SecretGetter, logger *logrus.Logger) error {
	if cfg.AWS.SecretName == "" {
		return fmt.Errorf("bot password from secrets requires AWS secret name")
	}

	password, err := getSecretValue(svc, cfg.AWS.SecretName)
	if err != nil {
		return fmt.Errorf("failed to get bot password from secrets: %w", err)
	}
	cfg.Bot.Password = password

	logger.WithField("secret_name", cfg.AWS.SecretName).Info("Bot password fetched from AWS Secrets Manager")
	return nil
}

func newSecretsClient(awsCfg *AWSConfig) (*secretsmanager.SecretsManager, error) {
	opts := session.Options{
		Config: aws.Config{
			Region: aws.String(awsCfg.Region),
		},
		SharedConfigState: session.SharedConfigEnable,
	}
	if awsCfg.Profile != "" {
		opts.Profile = awsCfg.Profile
	}

	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return secretsmanager.New(sess), nil
}

func getSecretValue(svc SecretGetter, name string) (string, error) {
	result, err := svc.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret '%s': %w", name, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret '%s' has no string value", name)
	}
	return *result.SecretString, nil
}
