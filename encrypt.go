package attachcrypto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// defaultEngine backs the package-level convenience functions that match
// spec.md §6's external interface exactly; callers that need custom
// collaborators (storage, padding policy, logger) should construct their
// own *Engine with NewEngine instead.
var defaultEngine = NewEngine()

// EncryptAttachment runs the encryption pipeline over plaintext and
// returns the resulting digest, IV, plaintext hash, and ciphertext size
// without requiring a caller-owned Engine.
func EncryptAttachment(ctx context.Context, plaintext PlaintextSource, keys []byte, opts EncryptOptions) (EncryptedResult, error) {
	return defaultEngine.EncryptAttachment(ctx, plaintext, keys, opts)
}

// EncryptAttachmentToDisk is EncryptAttachment plus persisting the
// resulting frame to storage at relPath, under the temp-file guard.
func EncryptAttachmentToDisk(ctx context.Context, plaintext PlaintextSource, keys []byte, opts EncryptOptions, storage Storage, relPath string) (EncryptedResult, error) {
	return defaultEngine.EncryptAttachmentToDisk(ctx, plaintext, keys, opts, storage, relPath)
}

// GetAttachmentCiphertextLength returns the ciphertext frame length a
// plaintext of plaintextLen bytes will produce once padded, under this
// engine's padding policy.
func GetAttachmentCiphertextLength(plaintextLen int64) int64 {
	return defaultEngine.GetAttachmentCiphertextLength(plaintextLen)
}

// GetPlaintextHashForInMemoryAttachment returns the lowercase-hex
// SHA-256 hash of b, matching the plaintextHash field an encryption of
// b would produce.
func GetPlaintextHashForInMemoryAttachment(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EncryptAttachment is the Engine-bound form of the package-level
// function of the same name; see its documentation.
func (e *Engine) EncryptAttachment(ctx context.Context, plaintext PlaintextSource, keys []byte, opts EncryptOptions) (EncryptedResult, error) {
	result, _, err := e.runEncrypt(ctx, plaintext, keys, opts, e.Storage)
	if err != nil {
		logPipelineError(e.Logger, "encrypt", opts.IDForLogging, err)
	}
	return result, err
}

// EncryptAttachmentToDisk is the Engine-bound form of the package-level
// function of the same name; see its documentation.
func (e *Engine) EncryptAttachmentToDisk(ctx context.Context, plaintext PlaintextSource, keys []byte, opts EncryptOptions, storage Storage, relPath string) (EncryptedResult, error) {
	var result EncryptedResult
	err := withGuardedOutput(storage, e.Logger, relPath, func(w io.Writer) error {
		opts.Sink = w
		r, _, err := e.runEncrypt(ctx, plaintext, keys, opts, storage)
		result = r
		return err
	})
	if err != nil {
		logPipelineError(e.Logger, "encrypt", opts.IDForLogging, err)
	}
	return result, err
}

// GetAttachmentCiphertextLength is the Engine-bound form of the
// package-level function of the same name.
func (e *Engine) GetAttachmentCiphertextLength(plaintextLen int64) int64 {
	padded := e.PadTarget(plaintextLen)
	return IVLength + aesCbcCiphertextLen(padded) + MACLength
}

// runEncrypt is the shared implementation behind EncryptAttachment and
// EncryptAttachmentToDisk. It additionally returns the resolved IV bytes
// so callers that need them (none currently) can reuse them without
// re-deriving.
func (e *Engine) runEncrypt(ctx context.Context, plaintext PlaintextSource, keys []byte, opts EncryptOptions, storage FileOpener) (EncryptedResult, []byte, error) {
	aesKey, macKey, err := SplitKeys(keys)
	if err != nil {
		return EncryptedResult{}, nil, err
	}

	iv, backupDigest, err := e.resolveEncryptIV(opts)
	if err != nil {
		return EncryptedResult{}, nil, err
	}

	if opts.SkipPadding && !e.IsTestEnvironment() {
		return EncryptedResult{}, nil, ErrTestOnlyFeatureUsed
	}

	src, closeSrc, err := plaintext.open(storage)
	if err != nil {
		return EncryptedResult{}, nil, err
	}
	defer closeSrc()

	sink := opts.Sink
	if sink == nil {
		sink = io.Discard
	}

	var ciphertextSize int64
	head, err := e.buildEncryptPipeline(aesKey, macKey, iv, opts.SkipPadding, sink, &ciphertextSize)
	if err != nil {
		return EncryptedResult{}, nil, err
	}

	plaintextHash := sha256.New()
	digestHash := head.digestHash
	wrapped := newHashTee(plaintextHash, head.stage)

	if err := runPipeline(ctx, src, wrapped, e.BufferSize); err != nil {
		return EncryptedResult{}, nil, err
	}

	digest := digestHash.Sum(nil)
	if backupDigest != nil && !constantTimeEqual(digest, backupDigest) {
		return EncryptedResult{}, nil, ErrReencryptedDigestMismatch
	}

	var result EncryptedResult
	copy(result.Digest[:], digest)
	copy(result.IV[:], iv)
	result.PlaintextHash = hex.EncodeToString(plaintextHash.Sum(nil))
	result.CiphertextSize = ciphertextSize
	return result, iv, nil
}

// resolveEncryptIV picks the IV to use and, for the backup re-encrypt
// escape hatch, the digest it must ultimately match.
func (e *Engine) resolveEncryptIV(opts EncryptOptions) (iv []byte, backupDigestToMatch []byte, err error) {
	if opts.DangerousIV == nil {
		iv, err = e.RandomBytes(IVLength)
		return iv, nil, err
	}
	switch opts.DangerousIV.Reason {
	case DangerousIVTest:
		if !e.IsTestEnvironment() {
			return nil, nil, ErrTestOnlyFeatureUsed
		}
		if err := validateIVLength(opts.DangerousIV.IV); err != nil {
			return nil, nil, err
		}
		return opts.DangerousIV.IV, nil, nil
	case DangerousIVReencryptingForBackup:
		if err := validateIVLength(opts.DangerousIV.IV); err != nil {
			return nil, nil, err
		}
		if err := validateDigestLength(opts.DangerousIV.DigestToMatch); err != nil {
			return nil, nil, err
		}
		return opts.DangerousIV.IV, opts.DangerousIV.DigestToMatch, nil
	default:
		return nil, nil, ErrInternal
	}
}

// encryptPipelineHead bundles the head stage of an encryption pipeline
// with the digest hash fed by its peekDigest tee, since the caller needs
// both the pipeline entry point and the hash object once the pipeline
// drains.
type encryptPipelineHead struct {
	stage      stage
	digestHash interface {
		Sum([]byte) []byte
	}
}

func (e *Engine) buildEncryptPipeline(aesKey, macKey, iv []byte, skipPadding bool, sink io.Writer, ciphertextSize *int64) (encryptPipelineHead, error) {
	sinkStage := &writerStage{w: sink}
	sizeMeter := newSizeMeter(func(n int64) { *ciphertextSize = n }, sinkStage)

	digestHash := sha256.New()
	digestTee := newHashTee(digestHash, sizeMeter)

	macAppender := newMACAppender(macKey, nil, digestTee)
	ivPrepend := newIVPrepender(iv, macAppender)

	cbcEncrypt, err := newCBCEncryptStage(aesKey, iv, ivPrepend)
	if err != nil {
		return encryptPipelineHead{}, err
	}

	padTarget := e.PadTarget
	if skipPadding {
		padTarget = func(n int64) int64 { return n }
	}
	paddingAppender := newPaddingAppender(padTarget, cbcEncrypt)

	return encryptPipelineHead{stage: paddingAppender, digestHash: digestHash}, nil
}
