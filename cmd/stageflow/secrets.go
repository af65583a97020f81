package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"stageflow/pkg/config"
)

// passphraseEnv lets non-interactive runs unlock the secrets file.
const passphraseEnv = "STAGEFLOW_PASSPHRASE"

const maxPasswordAttempts = 3

// readHidden reads one line from the terminal without echo.
func readHidden(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b, nil
}

// promptForPassword asks for a new passphrase twice and returns it once both entries match.
func promptForPassword() (string, error) {
	for attempt := 1; attempt <= maxPasswordAttempts; attempt++ {
		first, err := readHidden("Enter a passphrase for the secrets file: ")
		if err != nil {
			return "", err
		}
		second, err := readHidden("Confirm passphrase: ")
		if err != nil {
			zero(first)
			return "", err
		}

		match := len(first) > 0 && string(first) == string(second)
		password := string(first)
		zero(first)
		zero(second)

		if match {
			return password, nil
		}
		if attempt < maxPasswordAttempts {
			fmt.Println("❌ Passphrases were empty or did not match, try again")
		}
	}
	return "", errors.New("passphrase confirmation failed")
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// unlockSecrets loads the encrypted secrets file into memory, if one exists, and returns the
// passphrase that opened it.
func unlockSecrets(dir string) (string, error) {
	if !config.SecretsFileExists(dir) {
		return "", nil
	}

	password := os.Getenv(passphraseEnv)
	if password == "" {
		b, err := readHidden("🔐 Passphrase for " + dir + ": ")
		if err != nil {
			return "", err
		}
		password = string(b)
		zero(b)
	}

	secrets, err := config.DecryptSecretsFile(dir, password)
	if err != nil {
		return "", err
	}
	config.SetDecryptedSecrets(secrets)
	return password, nil
}

func runSecrets(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("secrets requires a subcommand: set or list")
	}

	dir, err := config.DefaultSecretsDir()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		if _, err := unlockSecrets(dir); err != nil {
			return err
		}
		names := config.SecretNames()
		if len(names) == 0 {
			fmt.Println("No secrets stored")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "set":
		if len(args) != 2 || strings.TrimSpace(args[1]) == "" {
			return errors.New("usage: stageflow secrets set <NAME>")
		}
		name := strings.TrimSpace(args[1])

		password, err := unlockSecrets(dir)
		if err != nil {
			return err
		}
		if password == "" {
			if password, err = promptForPassword(); err != nil {
				return err
			}
		}

		value, err := readHidden(fmt.Sprintf("Value for %s: ", name))
		if err != nil {
			return err
		}
		if len(value) == 0 {
			return fmt.Errorf("empty value for %s", name)
		}
		config.SetSecret(name, string(value))
		zero(value)

		fmt.Println("🔐 Encrypting and saving secrets...")
		if err := config.SaveSecrets(dir, password); err != nil {
			return err
		}
		fmt.Printf("✅ %s saved to %s\n", name, dir)
		return nil

	default:
		return fmt.Errorf("unknown secrets subcommand '%s'", args[0])
	}
}
