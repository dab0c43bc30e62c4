package commands

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"praman/internal/did"
	"praman/internal/vc/signer"
)

const (
	algFlagName  = "alg"
	algFlagUsage = "Issuer signing algorithm [eddsa] [es256k]."
)

// KeygenOutput is printed by keygen. Seed goes into ISSUER_KEY_SEED.
type KeygenOutput struct {
	Algorithm       string `json:"algorithm"`
	Seed            string `json:"seed"`
	KeyType         string `json:"keyType"`
	PublicKeyBase64 string `json:"publicKeyBase64"`
	IssuerDID       string `json:"issuerDid"`
}

// GetKeygenCmd returns the command that generates an issuer signing seed.
func GetKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an issuer signing seed and print its DID",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rawAlg, err := cmd.Flags().GetString(algFlagName)
			if err != nil {
				return err
			}
			alg, err := signingAlgorithm(rawAlg)
			if err != nil {
				return err
			}
			deriver, err := deriverFromFlags(cmd)
			if err != nil {
				return err
			}

			seed, err := signer.GenerateSeed()
			if err != nil {
				return err
			}
			sg, err := signer.New(alg, seed)
			if err != nil {
				return err
			}
			pub := sg.PublicKey()
			issuerDID, err := deriver.DeriveBytes(pub.Bytes, did.IssuerDeviceID)
			if err != nil {
				return fmt.Errorf("derive issuer did: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(KeygenOutput{
				Algorithm:       alg,
				Seed:            hex.EncodeToString(seed),
				KeyType:         string(pub.Type),
				PublicKeyBase64: base64.StdEncoding.EncodeToString(pub.Bytes),
				IssuerDID:       issuerDID.String(),
			})
		},
	}

	cmd.Flags().String(algFlagName, "eddsa", algFlagUsage)
	addDeriverFlags(cmd)
	return cmd
}

func signingAlgorithm(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eddsa", "ed25519":
		return signer.AlgEdDSA, nil
	case "es256k", "secp256k1":
		return signer.AlgES256K, nil
	default:
		return "", fmt.Errorf("unsupported algorithm %q", s)
	}
}
