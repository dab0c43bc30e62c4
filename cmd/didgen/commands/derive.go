package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"praman/internal/did"
)

const (
	publicKeyFlagName  = "public-key"
	publicKeyFlagUsage = "Public key as PEM or an opaque printable encoding such as base64."

	deviceIDFlagName  = "device-id"
	deviceIDFlagUsage = "Device identifier bound into the DID."

	masterDIDFlagName  = "did"
	masterDIDFlagUsage = "Master DID to derive the pairwise identifier from."

	relyingPartyFlagName  = "relying-party"
	relyingPartyFlagUsage = "Relying party identifier, usually its domain."
)

// GetDeriveCmd returns the command that derives a master DID.
func GetDeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a did:bharat identifier from a public key and device id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			publicKey, err := requiredString(cmd, publicKeyFlagName)
			if err != nil {
				return err
			}
			deviceID, err := requiredString(cmd, deviceIDFlagName)
			if err != nil {
				return err
			}
			deriver, err := deriverFromFlags(cmd)
			if err != nil {
				return err
			}

			d, err := deriver.Derive(publicKey, deviceID)
			if err != nil {
				return fmt.Errorf("derive did: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
			return nil
		},
	}

	cmd.Flags().String(publicKeyFlagName, "", publicKeyFlagUsage)
	cmd.Flags().String(deviceIDFlagName, "", deviceIDFlagUsage)
	addDeriverFlags(cmd)
	return cmd
}

// GetPairwiseCmd returns the command that derives a relying-party specific DID.
func GetPairwiseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairwise",
		Short: "Derive the pairwise DID a subject presents to one relying party",
		RunE: func(cmd *cobra.Command, _ []string) error {
			master, err := requiredString(cmd, masterDIDFlagName)
			if err != nil {
				return err
			}
			rp, err := requiredString(cmd, relyingPartyFlagName)
			if err != nil {
				return err
			}
			deriver, err := deriverFromFlags(cmd)
			if err != nil {
				return err
			}

			parsed, err := did.Parse(master)
			if err != nil {
				return err
			}
			d, err := deriver.Pairwise(parsed, rp)
			if err != nil {
				return fmt.Errorf("derive pairwise did: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
			return nil
		},
	}

	cmd.Flags().String(masterDIDFlagName, "", masterDIDFlagUsage)
	cmd.Flags().String(relyingPartyFlagName, "", relyingPartyFlagUsage)
	addDeriverFlags(cmd)
	return cmd
}
