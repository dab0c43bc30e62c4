package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"praman/internal/did"
)

const (
	saltFlagName  = "salt"
	saltEnvKey    = "DID_SALT"
	saltFlagUsage = "Derivation salt. Defaults to the built-in salt." +
		" Alternatively, this can be set with the following environment variable: " + saltEnvKey

	hashFlagName  = "hash"
	hashEnvKey    = "DID_HASH"
	hashFlagUsage = "Digest algorithm [sha256] [sha3-256]." +
		" Alternatively, this can be set with the following environment variable: " + hashEnvKey
)

// stringFlagOrEnv returns the flag value when set, then the environment
// variable, then the flag default.
func stringFlagOrEnv(cmd *cobra.Command, flagName, envKey string) (string, error) {
	value, err := cmd.Flags().GetString(flagName)
	if err != nil {
		return "", err
	}
	if cmd.Flags().Changed(flagName) {
		return value, nil
	}
	if env, ok := os.LookupEnv(envKey); ok && env != "" {
		return env, nil
	}
	return value, nil
}

func requiredString(cmd *cobra.Command, flagName string) (string, error) {
	value, err := cmd.Flags().GetString(flagName)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("--%s is required", flagName)
	}
	return value, nil
}

func addDeriverFlags(cmd *cobra.Command) {
	cmd.Flags().String(saltFlagName, "", saltFlagUsage)
	cmd.Flags().String(hashFlagName, string(did.HashSHA256), hashFlagUsage)
}

func deriverFromFlags(cmd *cobra.Command) (*did.Deriver, error) {
	salt, err := stringFlagOrEnv(cmd, saltFlagName, saltEnvKey)
	if err != nil {
		return nil, err
	}
	rawHash, err := stringFlagOrEnv(cmd, hashFlagName, hashEnvKey)
	if err != nil {
		return nil, err
	}
	alg, err := did.ParseHashAlgorithm(rawHash)
	if err != nil {
		return nil, err
	}
	return did.NewDeriver(did.WithSalt(salt), did.WithHash(alg)), nil
}
