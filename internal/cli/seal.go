package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/estatesync/internal/config"
	"github.com/dmitrijs2005/estatesync/internal/cryptox"
)

var ErrEmptySecret = errors.New("empty token secret")

// Seal prompts on prompt for an access token secret and a passphrase and
// writes the sealed secret to out, ready for the "sealed_token_secret"
// config key.
func Seal(out, prompt io.Writer) error {
	secret, err := GetPassword(prompt, "Access token secret: ")
	if err != nil {
		return err
	}
	defer wipe(secret)
	if len(secret) == 0 {
		return ErrEmptySecret
	}

	pass, err := passphrase(prompt, true)
	if err != nil {
		return err
	}
	defer wipe(pass)

	sealed, err := cryptox.Seal(pass, secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, sealed)
	return err
}

// tokenSecret returns the plain access token secret of cfg, opening the
// sealed variant when one is configured.
func tokenSecret(cfg *config.Config, prompt io.Writer) (string, error) {
	if cfg.SealedTokenSecret == "" {
		return cfg.AccessTokenSecret, nil
	}

	pass, err := passphrase(prompt, false)
	if err != nil {
		return "", err
	}
	defer wipe(pass)

	plain, err := cryptox.Open(pass, cfg.SealedTokenSecret)
	if err != nil {
		return "", fmt.Errorf("open sealed token secret: %w", err)
	}
	return string(plain), nil
}
