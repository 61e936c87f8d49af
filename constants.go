package attachcrypto

// Fixed sizes for the AttachmentCryptoV2 frame. None of these are
// configurable: the frame's byte layout must stay bit-for-bit compatible
// across client versions, so changing any of them is a new format, not a
// parameter.
const (
	// KeyLength is the size in bytes of the AES-256 key half of a
	// combined key.
	KeyLength = 32

	// MACLength is the size in bytes of the HMAC-SHA-256 key half of a
	// combined key, and of the MAC tag appended to a frame.
	MACLength = 32

	// KeySetLength is the size in bytes of a combined key: KeyLength
	// bytes of AES key followed by MACLength bytes of MAC key.
	KeySetLength = KeyLength + MACLength

	// IVLength is the size in bytes of the AES-CBC initialization
	// vector prepended to a frame.
	IVLength = 16

	// DigestLength is the size in bytes of the SHA-256 digest computed
	// over a complete frame.
	DigestLength = 32

	// HexDigestLength is the length of a plaintext hash when rendered
	// as lowercase hex.
	HexDigestLength = 64

	// AESBlockSize is the AES block size in bytes, and therefore also
	// the PKCS#7 padding granularity.
	AESBlockSize = 16
)
