package attachcrypto

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// DecryptAttachmentToSink runs the decryption pipeline, verifying
// integrity in constant time, and writes recovered plaintext to sink.
// This is the primitive the re-encryptor and in-memory consumers use.
func DecryptAttachmentToSink(ctx context.Context, opts DecryptOptions, sink io.Writer) (DecryptedResult, error) {
	return defaultEngine.DecryptAttachmentToSink(ctx, opts, sink)
}

// DecryptAttachmentToDisk is DecryptAttachmentToSink plus persisting
// recovered plaintext to storage at relPath, under the temp-file guard.
func DecryptAttachmentToDisk(ctx context.Context, opts DecryptOptions, storage Storage, relPath string) (DecryptedResult, error) {
	return defaultEngine.DecryptAttachmentToDisk(ctx, opts, storage, relPath)
}

// DecryptAttachmentToSink is the Engine-bound form of the package-level
// function of the same name; see its documentation.
func (e *Engine) DecryptAttachmentToSink(ctx context.Context, opts DecryptOptions, sink io.Writer) (DecryptedResult, error) {
	result, err := e.runDecrypt(ctx, opts, sink, e.Storage)
	if err != nil {
		logPipelineError(e.Logger, "decrypt", opts.IDForLogging, err)
	}
	return result, err
}

// DecryptAttachmentToDisk is the Engine-bound form of the package-level
// function of the same name; see its documentation.
func (e *Engine) DecryptAttachmentToDisk(ctx context.Context, opts DecryptOptions, storage Storage, relPath string) (DecryptedResult, error) {
	var result DecryptedResult
	err := withGuardedOutput(storage, e.Logger, relPath, func(w io.Writer) error {
		r, err := e.runDecrypt(ctx, opts, w, storage)
		result = r
		return err
	})
	if err == nil {
		result.Path = relPath
	}
	if err != nil {
		logPipelineError(e.Logger, "decrypt", opts.IDForLogging, err)
	}
	return result, err
}

// resolveDecryptKeys returns (aesKey, macKey). A non-empty KeysBase64 is
// decoded and split and takes precedence over AESKey/MACKey.
func resolveDecryptKeys(opts DecryptOptions) (aesKey, macKey []byte, err error) {
	if opts.KeysBase64 != "" {
		combined, err := base64.StdEncoding.DecodeString(opts.KeysBase64)
		if err != nil {
			return nil, nil, withID(opts.IDForLogging, ErrInvalidKeyLength)
		}
		return SplitKeys(combined)
	}
	if len(opts.AESKey) != KeyLength || len(opts.MACKey) != MACLength {
		return nil, nil, ErrInvalidKeyLength
	}
	return opts.AESKey, opts.MACKey, nil
}

// openCiphertext resolves the ciphertext source: a directly supplied
// Reader takes priority (used internally by the re-encryptor's pipe
// bridge), otherwise CiphertextPath is opened through storage.
func openCiphertext(opts DecryptOptions, storage FileOpener) (io.Reader, func() error, error) {
	if opts.Reader != nil {
		return opts.Reader, func() error { return nil }, nil
	}
	f, err := storage.OpenRead(opts.CiphertextPath)
	if err != nil {
		return nil, nil, newIOError("open", opts.CiphertextPath, err)
	}
	return f, f.Close, nil
}

func (e *Engine) runDecrypt(ctx context.Context, opts DecryptOptions, sink io.Writer, storage FileOpener) (DecryptedResult, error) {
	if err := validateDeclaredSize(opts.Size); err != nil {
		return DecryptedResult{}, err
	}
	aesKey, macKey, err := resolveDecryptKeys(opts)
	if err != nil {
		return DecryptedResult{}, err
	}

	src, closeSrc, err := openCiphertext(opts, storage)
	if err != nil {
		return DecryptedResult{}, err
	}
	defer closeSrc()

	sinkStage := &writerStage{w: sink}

	plaintextHash := sha256.New()
	var innerIV []byte
	var theirInnerMAC []byte
	innerHMAC := newHMAC(macKey)
	var digestHash = sha256.New()
	var theirOuterMAC []byte
	var outerHMAC interface {
		Sum([]byte) []byte
	}

	onEnd := func() error {
		if !constantTimeEqual(innerHMAC.Sum(nil), theirInnerMAC) {
			return ErrBadMAC
		}
		if opts.Integrity.checksDigest() {
			if !constantTimeEqual(digestHash.Sum(nil), opts.Integrity.theirDigest) {
				return ErrBadDigest
			}
		}
		if opts.Outer != nil {
			if !constantTimeEqual(outerHMAC.Sum(nil), theirOuterMAC) {
				return ErrBadOuterMAC
			}
		}
		return nil
	}

	finalizer := newFinalizer(onEnd, sinkStage)
	peekPlaintextHash := newHashTee(plaintextHash, finalizer)
	trimmer := newPaddingTrimmer(opts.Size, peekPlaintextHash)
	innerDecipher := newCBCDecipherStage(aesKey, func(iv []byte) { innerIV = iv }, trimmer)
	macSplitter := newMACSplitter(innerHMAC, func(tag []byte) { theirInnerMAC = tag }, innerDecipher)
	peekDigest := newHashTee(digestHash, macSplitter)

	// With an outer layer, peekDigest sits after the outer MAC strip and
	// decipher, so the digest covers the inner frame only. The outer
	// layer is checked by its MAC alone; no outer digest is computed.
	var head stage = peekDigest
	if opts.Outer != nil {
		h := newHMAC(opts.Outer.MACKey)
		outerHMAC = h
		outerDecipher := newCBCDecipherStage(opts.Outer.AESKey, nil, peekDigest)
		head = newMACSplitter(h, func(tag []byte) { theirOuterMAC = tag }, outerDecipher)
	}

	if err := runPipeline(ctx, src, head, e.BufferSize); err != nil {
		return DecryptedResult{}, err
	}

	var result DecryptedResult
	copy(result.IV[:], innerIV)
	result.PlaintextHash = hex.EncodeToString(plaintextHash.Sum(nil))
	return result, nil
}
