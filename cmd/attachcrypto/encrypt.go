package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/streamvault/attachcrypto"
)

var (
	encryptKeysFlag       string
	encryptKeyNameFlag    string
	encryptPassphraseFlag string
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <input> <output>",
	Short: "Encrypt a file into an AttachmentCryptoV2 ciphertext frame",
	Args:  cobra.ExactArgs(2),
	RunE:  runEncrypt,
}

func init() {
	encryptCmd.Flags().StringVar(&encryptKeysFlag, "keys", "", "base64 combined key; a fresh one is generated and printed if omitted")
	encryptCmd.Flags().StringVar(&encryptKeyNameFlag, "key-name", "", "name of a key stored in the keystore, used instead of --keys")
	encryptCmd.Flags().StringVar(&encryptPassphraseFlag, "passphrase", "", "passphrase unlocking the keystore named by --key-name")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	var keys []byte
	switch {
	case encryptKeysFlag == "" && encryptKeyNameFlag == "":
		generated, err := attachcrypto.GenerateKeys(cryptoRandReader())
		if err != nil {
			return err
		}
		keys = generated
		fmt.Fprintf(cmd.OutOrStdout(), "generated keys: %s\n", base64.StdEncoding.EncodeToString(keys))
	default:
		decoded, err := resolveKeys(encryptKeysFlag, encryptKeyNameFlag, encryptPassphraseFlag)
		if err != nil {
			return err
		}
		keys = decoded
	}

	absInput, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	absOutput, err := filepath.Abs(output)
	if err != nil {
		return err
	}

	// Rooted at "/" so the caller's absolute paths resolve directly;
	// absolute-path resolution for attachments proper stays out of the
	// engine itself.
	storage := attachcrypto.NewOSStorage("/")
	engine := newEngine()
	result, err := engine.EncryptAttachmentToDisk(
		context.Background(),
		attachcrypto.PlaintextFromPath(absInput),
		keys,
		attachcrypto.EncryptOptions{},
		storage,
		absOutput,
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "digest: %x\nplaintextHash: %s\nciphertextSize: %d\n",
		result.Digest, result.PlaintextHash, result.CiphertextSize)
	return nil
}
