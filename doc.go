// Package attachcrypto implements AttachmentCryptoV2, a streaming
// attachment encryption and decryption engine used to protect user
// attachments at rest and in transit.
//
// # Frame format
//
// A ciphertext frame is the concatenation:
//
//	IV (16 bytes) || AES-256-CBC(padded plaintext) || HMAC-SHA-256 (32 bytes)
//
// The HMAC covers the IV and the ciphertext. The digest returned
// alongside a successful encryption is SHA-256 over the entire frame;
// the plaintext hash is SHA-256 over the unpadded plaintext, as
// lowercase hex. There is no version byte and no sidecar metadata — the
// caller selects the V2 codec out of band.
//
// # Construction
//
// This is deliberately Encrypt-then-MAC over CBC, not an AEAD mode.
// Callers that need authenticated encryption with associated data should
// look elsewhere; this engine trades that generality for a fixed,
// auditable byte layout that must stay bit-for-bit compatible across
// client versions.
//
// # Pipelines
//
// Encryption and decryption are each a linear chain of byte-transforming
// stages connecting a source to a sink (see stages.go). Every stage
// processes input in order, propagates backpressure to its caller, and
// aborts the whole chain on the first error. This lets both plaintext
// and ciphertext exceed available memory: nothing is ever buffered in
// full; stages hold back only small fixed windows by construction (the
// 16-byte IV, a partial or last AES block in the CBC stages, and the
// 32-byte trailing MAC), beyond the chunk currently being written.
//
// # Basic usage
//
//	keys, _ := attachcrypto.GenerateKeys(rand.Reader)
//	var frame bytes.Buffer
//	result, err := attachcrypto.EncryptAttachment(ctx,
//	    attachcrypto.PlaintextFromBytes([]byte("hello")), keys,
//	    attachcrypto.EncryptOptions{Sink: &frame})
//
//	aesKey, macKey, _ := attachcrypto.SplitKeys(keys)
//	var buf bytes.Buffer
//	decrypted, err := attachcrypto.DecryptAttachmentToSink(ctx,
//	    attachcrypto.DecryptOptions{
//	        Reader: &frame,
//	        AESKey: aesKey, MACKey: macKey,
//	        Size:      int64(len("hello")),
//	        Integrity: attachcrypto.LocalIntegrity(),
//	    }, &buf)
//
// # Not protected against
//
//   - Key agreement or asymmetric crypto of any kind (out of scope)
//   - Compression or format migration from a prior attachment version
//   - Memory dumps while plaintext is resident in process memory
package attachcrypto
