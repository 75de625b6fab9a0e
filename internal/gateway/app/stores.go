package app

import (
	"log"
	"strings"

	"workbench/internal/export"
	"workbench/internal/gateway/config"
	"workbench/internal/push"
	"workbench/internal/repocontext"
)

// newContextStore picks the repository context backend: postgres when a
// DSN is configured, a JSON file otherwise.
func newContextStore(cfg *config.Config) repocontext.Store {
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		store, err := repocontext.NewPostgresStore(dsn)
		if err != nil {
			log.Printf("context store: postgres unavailable, using file fallback: %v", err)
		} else {
			log.Printf("context store: postgres")
			return store
		}
	}
	log.Printf("context store: file %s", cfg.ContextPath)
	return repocontext.NewFileStore(cfg.ContextPath)
}

// newSnapshotStore builds the S3 snapshot store when configured; a nil
// store disables the snapshot endpoint.
func newSnapshotStore(cfg *config.Config) (*export.SnapshotStore, error) {
	if !cfg.Snapshot.CanUseS3() {
		if cfg.Snapshot.Enabled {
			log.Printf("snapshot store: disabled (s3 config incomplete)")
		}
		return nil, nil
	}
	store, err := export.NewSnapshotStore(export.S3Config{
		Endpoint:  cfg.Snapshot.Endpoint,
		Region:    cfg.Snapshot.Region,
		AccessKey: cfg.Snapshot.AccessKey,
		SecretKey: cfg.Snapshot.SecretKey,
		Bucket:    cfg.Snapshot.Bucket,
		UseSSL:    cfg.Snapshot.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("snapshot store: s3 bucket=%s endpoint=%s", cfg.Snapshot.Bucket, cfg.Snapshot.Endpoint)
	return store, nil
}

// envCredentials resolves fallback git-host credentials from the process
// environment.
type envCredentials struct {
	cfg *config.Config
}

func (c envCredentials) Credential(provider repocontext.Provider) (push.Credentials, bool) {
	switch provider {
	case repocontext.ProviderGitHub:
		if c.cfg.Credentials.GitHubToken == "" {
			return push.Credentials{}, false
		}
		return push.Credentials{
			Token:    c.cfg.Credentials.GitHubToken,
			Username: c.cfg.Credentials.GitHubUsername,
		}, true
	case repocontext.ProviderGitLab:
		if c.cfg.Credentials.GitLabToken == "" {
			return push.Credentials{}, false
		}
		return push.Credentials{
			Token:    c.cfg.Credentials.GitLabToken,
			Username: c.cfg.Credentials.GitLabUsername,
		}, true
	default:
		return push.Credentials{}, false
	}
}
