package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/streamvault/attachcrypto"
)

var (
	decryptKeysFlag       string
	decryptKeyNameFlag    string
	decryptPassphraseFlag string
	decryptSizeFlag       int64
	decryptModeFlag       string
	decryptDigestFlag     string
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt <input> <output>",
	Short: "Decrypt an AttachmentCryptoV2 ciphertext frame",
	Args:  cobra.ExactArgs(2),
	RunE:  runDecrypt,
}

func init() {
	decryptCmd.Flags().StringVar(&decryptKeysFlag, "keys", "", "base64 combined key")
	decryptCmd.Flags().StringVar(&decryptKeyNameFlag, "key-name", "", "name of a key stored in the keystore, used instead of --keys")
	decryptCmd.Flags().StringVar(&decryptPassphraseFlag, "passphrase", "", "passphrase unlocking the keystore named by --key-name")
	decryptCmd.Flags().Int64Var(&decryptSizeFlag, "size", 0, "declared unpadded plaintext size (required)")
	decryptCmd.Flags().StringVar(&decryptModeFlag, "mode", "standard", "integrity mode: standard, local, or backup-thumbnail")
	decryptCmd.Flags().StringVar(&decryptDigestFlag, "digest", "", "expected hex digest (required for --mode standard)")
	_ = decryptCmd.MarkFlagRequired("size")
}

func parseIntegrityMode(mode, digestHex string) (attachcrypto.IntegrityMode, error) {
	switch mode {
	case "standard":
		digest, err := hex.DecodeString(digestHex)
		if err != nil {
			return attachcrypto.IntegrityMode{}, fmt.Errorf("decoding --digest: %w", err)
		}
		return attachcrypto.StandardIntegrity(digest), nil
	case "local":
		return attachcrypto.LocalIntegrity(), nil
	case "backup-thumbnail":
		return attachcrypto.BackupThumbnailIntegrity(), nil
	default:
		return attachcrypto.IntegrityMode{}, fmt.Errorf("unknown --mode %q", mode)
	}
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	combined, err := resolveKeys(decryptKeysFlag, decryptKeyNameFlag, decryptPassphraseFlag)
	if err != nil {
		return err
	}
	aesKey, macKey, err := attachcrypto.SplitKeys(combined)
	if err != nil {
		return err
	}
	integrity, err := parseIntegrityMode(decryptModeFlag, decryptDigestFlag)
	if err != nil {
		return err
	}

	absInput, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	absOutput, err := filepath.Abs(output)
	if err != nil {
		return err
	}

	storage := attachcrypto.NewOSStorage("/")
	engine := newEngine()
	result, err := engine.DecryptAttachmentToDisk(context.Background(), attachcrypto.DecryptOptions{
		CiphertextPath: absInput,
		Size:           decryptSizeFlag,
		AESKey:         aesKey,
		MACKey:         macKey,
		Integrity:      integrity,
	}, storage, absOutput)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "iv: %x\nplaintextHash: %s\npath: %s\n", result.IV, result.PlaintextHash, result.Path)
	return nil
}
