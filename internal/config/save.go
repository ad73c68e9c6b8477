package config

import (
	"bytes"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"repolink/internal/util"
)

// Save writes cfg to dir/config.yaml. Durations are written in their string
// form so the file stays editable by hand.
func Save(dir string, cfg *Config) (string, error) {
	doc := map[string]any{
		"local_path":        cfg.LocalPath,
		"remote_url":        cfg.RemoteURL,
		"branch":            cfg.Branch,
		"interval":          cfg.Interval.String(),
		"confirm_timeout":   cfg.ConfirmTimeout.String(),
		"max_retries":       cfg.MaxRetries,
		"max_auth_failures": cfg.MaxAuthFailures,
		"settle_scans":      cfg.SettleScans,
		"settle_delay":      cfg.SettleDelay.String(),
		"ignore_list":       cfg.IgnoreList,
		"watch_local":       cfg.WatchLocal,
		"propose_push":      cfg.ProposePush,
		"daemon_port":       cfg.DaemonPort,
		"db_path":           cfg.DBPath,
		"persist_baseline":  cfg.PersistBaseline,
		"author_name":       cfg.AuthorName,
		"author_email":      cfg.AuthorEmail,
	}
	if cfg.CredentialRef != "" {
		doc["credential_ref"] = cfg.CredentialRef
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := util.AtomicWrite(path, &buf); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}

	return path, nil
}
