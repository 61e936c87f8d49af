package attachcrypto

import (
	"bytes"
	"testing"
)

func TestKeystoreSaveLoadRoundTrip(t *testing.T) {
	ks := NewKeystore(newMemStorage())
	keys := map[string][]byte{
		"attachment-key": bytes.Repeat([]byte{0x11}, KeySetLength),
		"backup-key":     bytes.Repeat([]byte{0x22}, KeySetLength),
	}

	if err := ks.Save("keystore.bin", "correct horse battery staple", keys); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := ks.Load("keystore.bin", "correct horse battery staple")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(keys))
	}
	for name, want := range keys {
		if !bytes.Equal(got[name], want) {
			t.Errorf("keys[%q] = %x, want %x", name, got[name], want)
		}
	}
}

func TestKeystoreLoadWrongPassphrase(t *testing.T) {
	ks := NewKeystore(newMemStorage())
	keys := map[string][]byte{"k": bytes.Repeat([]byte{0x01}, KeySetLength)}

	if err := ks.Save("keystore.bin", "right passphrase", keys); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := ks.Load("keystore.bin", "wrong passphrase"); err != ErrBadMAC {
		t.Errorf("Load with wrong passphrase: err = %v, want ErrBadMAC", err)
	}
}

func TestKeystoreLoadTruncated(t *testing.T) {
	ks := NewKeystore(newMemStorage())
	w, _ := ks.Storage.CreateForWrite("tiny.bin")
	w.Write([]byte("not a real keystore frame"))
	w.Close()

	if _, err := ks.Load("tiny.bin", "whatever"); err != ErrTruncatedFrame {
		t.Errorf("Load truncated: err = %v, want ErrTruncatedFrame", err)
	}
}
