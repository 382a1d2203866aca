package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultRPCEndpoint = "http://127.0.0.1:8899"

	envRPCURL     = "LOTTO_RPC_URL"
	envRPCToken   = "LOTTO_RPC_TOKEN"
	envKeystore   = "LOTTO_KEYSTORE"
	envPassphrase = "LOTTO_KEYSTORE_PASS"
	envProfile    = "LOTTO_PROFILE"
)

// Profile holds per-user CLI defaults, read from ~/.lotto/profile.yaml.
type Profile struct {
	RPC      string `yaml:"rpc"`
	Token    string `yaml:"token,omitempty"`
	Keystore string `yaml:"keystore"`
}

func defaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".lotto", "profile.yaml")
}

// loadProfile reads path. A missing file yields the zero profile.
func loadProfile(path string) (Profile, error) {
	var p Profile
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

func saveProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// settings are the resolved connection parameters. Flags win over the
// environment, which wins over the profile.
type settings struct {
	endpoint    string
	token       string
	keystore    string
	profilePath string
}

func resolveSettings(flags settings, profile Profile, lookup func(string) (string, bool)) settings {
	pick := func(flagValue, envKey, profileValue, fallback string) string {
		if v := strings.TrimSpace(flagValue); v != "" {
			return v
		}
		if v, ok := lookup(envKey); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		if v := strings.TrimSpace(profileValue); v != "" {
			return v
		}
		return fallback
	}
	return settings{
		endpoint:    pick(flags.endpoint, envRPCURL, profile.RPC, defaultRPCEndpoint),
		token:       pick(flags.token, envRPCToken, profile.Token, ""),
		keystore:    pick(flags.keystore, envKeystore, profile.Keystore, ""),
		profilePath: flags.profilePath,
	}
}
