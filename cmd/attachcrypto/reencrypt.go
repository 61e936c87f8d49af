package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/streamvault/attachcrypto"
)

var (
	reencryptKeysFlag       string
	reencryptKeyNameFlag    string
	reencryptPassphraseFlag string
	reencryptSizeFlag       int64
	reencryptModeFlag       string
	reencryptDigestFlag     string
	reencryptDirFlag        string
)

var reencryptCmd = &cobra.Command{
	Use:   "reencrypt <input>",
	Short: "Decrypt a ciphertext frame and re-encrypt it under a fresh local key",
	Args:  cobra.ExactArgs(1),
	RunE:  runReencrypt,
}

func init() {
	reencryptCmd.Flags().StringVar(&reencryptKeysFlag, "keys", "", "base64 combined key")
	reencryptCmd.Flags().StringVar(&reencryptKeyNameFlag, "key-name", "", "name of a key stored in the keystore, used instead of --keys")
	reencryptCmd.Flags().StringVar(&reencryptPassphraseFlag, "passphrase", "", "passphrase unlocking the keystore named by --key-name")
	reencryptCmd.Flags().Int64Var(&reencryptSizeFlag, "size", 0, "declared unpadded plaintext size (required)")
	reencryptCmd.Flags().StringVar(&reencryptModeFlag, "mode", "standard", "integrity mode: standard, local, or backup-thumbnail")
	reencryptCmd.Flags().StringVar(&reencryptDigestFlag, "digest", "", "expected hex digest (required for --mode standard)")
	reencryptCmd.Flags().StringVar(&reencryptDirFlag, "out-dir", ".", "directory the re-encrypted frame is written into")
	_ = reencryptCmd.MarkFlagRequired("size")
}

func runReencrypt(cmd *cobra.Command, args []string) error {
	input := args[0]

	combined, err := resolveKeys(reencryptKeysFlag, reencryptKeyNameFlag, reencryptPassphraseFlag)
	if err != nil {
		return err
	}
	aesKey, macKey, err := attachcrypto.SplitKeys(combined)
	if err != nil {
		return err
	}
	integrity, err := parseIntegrityMode(reencryptModeFlag, reencryptDigestFlag)
	if err != nil {
		return err
	}

	absInput, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	absOutDir, err := filepath.Abs(reencryptDirFlag)
	if err != nil {
		return err
	}

	storage := attachcrypto.NewOSStorage("/")
	pathAllocator := func() (string, error) {
		return filepath.Join(absOutDir, uuid.NewString()+".bin"), nil
	}

	engine := newEngine()
	result, err := engine.DecryptAndReencryptLocally(context.Background(), attachcrypto.DecryptOptions{
		CiphertextPath: absInput,
		Size:           reencryptSizeFlag,
		AESKey:         aesKey,
		MACKey:         macKey,
		Integrity:      integrity,
	}, storage, pathAllocator)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "path: %s\niv: %s\nlocalKey: %s\nplaintextHash: %s\nversion: %d\n",
		result.Path, result.IV, result.LocalKey, result.PlaintextHash, result.Version)
	return nil
}
