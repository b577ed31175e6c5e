package service

import (
	"context"
	"fmt"
	"strings"

	"greencredits/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

type SecretManagerService interface {
	AccessSecret(ctx context.Context, name string) ([]byte, error)
	Close() error
}

type secretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretManagerService(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (SecretManagerService, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretManagerService{
		client:    client,
		projectID: cfg.GCPProjectID,
	}, nil
}

// AccessSecret reads the latest version of a secret. name may be a short
// secret ID or a full "projects/.../secrets/..." resource name.
func (s *secretManagerService) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretVersionName(s.projectID, name),
	}

	result, err := s.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to access secret version: %w", err)
	}

	return result.Payload.Data, nil
}

func (s *secretManagerService) Close() error {
	return s.client.Close()
}

func secretVersionName(projectID, name string) string {
	if !strings.HasPrefix(name, "projects/") {
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name)
	}
	if !strings.Contains(name, "/versions/") {
		return name + "/versions/latest"
	}
	return name
}
