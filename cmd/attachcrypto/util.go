package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"

	"github.com/streamvault/attachcrypto"
)

func cryptoRandReader() io.Reader {
	return rand.Reader
}

// resolveKeys decodes an explicit base64 combined key if one was given,
// otherwise looks keyName up in the keystore at appConfig.KeystorePath
// under passphrase. At least one of keysFlag or keyName must be set;
// keysFlag wins when both are.
func resolveKeys(keysFlag, keyName, passphrase string) ([]byte, error) {
	if keysFlag != "" {
		return base64.StdEncoding.DecodeString(keysFlag)
	}
	if keyName == "" {
		return nil, fmt.Errorf("one of --keys or --key-name is required")
	}
	ks := attachcrypto.NewKeystore(attachcrypto.NewOSStorage("/"))
	absPath, err := filepath.Abs(appConfig.KeystorePath)
	if err != nil {
		return nil, err
	}
	keys, err := ks.Load(absPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("loading %q from keystore: %w", keyName, err)
	}
	combined, ok := keys[keyName]
	if !ok {
		return nil, fmt.Errorf("key %q not found in keystore %s", keyName, absPath)
	}
	return combined, nil
}
