package credentials

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"cloud.google.com/go/compute/metadata"
	"golang.org/x/oauth2/google"
)

// metadataStrategy queries the GCE/Cloud Run metadata server for the default
// service account email. The server is only reachable inside the managed
// compute environment, so OnGCE gates the network call.
type metadataStrategy struct {
	onGCE func() bool
	email func(ctx context.Context) (string, error)
}

func newMetadataStrategy() *metadataStrategy {
	return &metadataStrategy{
		onGCE: metadata.OnGCE,
		email: func(ctx context.Context) (string, error) {
			return metadata.EmailWithContext(ctx, "default")
		},
	}
}

func (s *metadataStrategy) Method() Method { return MethodMetadata }

func (s *metadataStrategy) Detect(ctx context.Context) (string, error) {
	if !s.onGCE() {
		return "", nil
	}
	email, err := s.email(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(email), nil
}

// adcStrategy reads the locally cached application default credentials and
// extracts the service-account email from the credential JSON. User-account
// ADC files carry no email and yield nothing.
type adcStrategy struct {
	findCredentials func(ctx context.Context) ([]byte, error)
}

func newADCStrategy() *adcStrategy {
	return &adcStrategy{
		findCredentials: func(ctx context.Context) ([]byte, error) {
			creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/sqlservice.login")
			if err != nil {
				return nil, err
			}
			return creds.JSON, nil
		},
	}
}

func (s *adcStrategy) Method() Method { return MethodADC }

func (s *adcStrategy) Detect(ctx context.Context) (string, error) {
	raw, err := s.findCredentials(ctx)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}

	var payload struct {
		ClientEmail string `json:"client_email"`
		Account     string `json:"account"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	if payload.ClientEmail != "" {
		return payload.ClientEmail, nil
	}
	return payload.Account, nil
}

// gcloudStrategy shells out to the locally configured gcloud CLI.
type gcloudStrategy struct {
	run func(ctx context.Context) (string, error)
}

func newGcloudStrategy() *gcloudStrategy {
	return &gcloudStrategy{
		run: func(ctx context.Context) (string, error) {
			out, err := exec.CommandContext(ctx, "gcloud", "config", "get-value", "account").Output()
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

func (s *gcloudStrategy) Method() Method { return MethodGcloud }

func (s *gcloudStrategy) Detect(ctx context.Context) (string, error) {
	out, err := s.run(ctx)
	if err != nil {
		return "", err
	}
	account := strings.TrimSpace(out)
	// gcloud prints "(unset)" when no account is configured.
	if account == "(unset)" {
		return "", nil
	}
	return account, nil
}
