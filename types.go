package attachcrypto

import (
	"bytes"
	"flag"
	"io"
)

// PlaintextSource is a tagged union over the three ways plaintext can be
// supplied to the encryptor: bytes already resident in memory, an
// arbitrary io.Reader, or a path resolved through the caller's storage.
type PlaintextSource struct {
	kind   plaintextKind
	bytes  []byte
	reader io.Reader
	path   string
}

type plaintextKind int

const (
	plaintextBytes plaintextKind = iota
	plaintextReader
	plaintextPath
)

// PlaintextFromBytes wraps an in-memory plaintext.
func PlaintextFromBytes(b []byte) PlaintextSource {
	return PlaintextSource{kind: plaintextBytes, bytes: b}
}

// PlaintextFromReader wraps an arbitrary readable stream. The caller
// retains ownership of closing r if it implements io.Closer.
func PlaintextFromReader(r io.Reader) PlaintextSource {
	return PlaintextSource{kind: plaintextReader, reader: r}
}

// PlaintextFromPath wraps a relative path to be opened through the
// storage abstraction the encryptor was given. Absolute-path resolution
// is the caller's responsibility.
func PlaintextFromPath(path string) PlaintextSource {
	return PlaintextSource{kind: plaintextPath, path: path}
}

// open resolves the source to a single io.Reader, using storage to open
// a path-backed source when needed.
func (p PlaintextSource) open(storage FileOpener) (io.Reader, func() error, error) {
	switch p.kind {
	case plaintextBytes:
		return bytes.NewReader(p.bytes), func() error { return nil }, nil
	case plaintextReader:
		return p.reader, func() error { return nil }, nil
	case plaintextPath:
		if storage == nil {
			return nil, nil, ErrInternal
		}
		f, err := storage.OpenRead(p.path)
		if err != nil {
			return nil, nil, newIOError("open", p.path, err)
		}
		return f, f.Close, nil
	default:
		return nil, nil, ErrInternal
	}
}

// DangerousIVReason names the two test/backup escape hatches that allow
// the caller to force a specific IV instead of generating one randomly.
type DangerousIVReason int

const (
	// DangerousIVTest forces an IV for test fixtures only; permitted
	// only when Engine.IsTestEnvironment reports true.
	DangerousIVTest DangerousIVReason = iota
	// DangerousIVReencryptingForBackup forces an IV when re-encrypting
	// an attachment for backup so the produced digest matches a
	// previously stored one.
	DangerousIVReencryptingForBackup
)

// DangerousIV is the tagged union spec.md §4.3 calls `dangerousIv`. Build
// one with ForcedTestIV or ForcedBackupIV. "No forced IV" is a nil
// *DangerousIV; the zero value is a DangerousIVTest with no IV and must
// not be passed directly.
type DangerousIV struct {
	Reason        DangerousIVReason
	IV            []byte
	DigestToMatch []byte // only meaningful for DangerousIVReencryptingForBackup
}

// ForcedTestIV builds a DangerousIV for test fixtures.
func ForcedTestIV(iv []byte) *DangerousIV {
	return &DangerousIV{Reason: DangerousIVTest, IV: iv}
}

// ForcedBackupIV builds a DangerousIV for the backup re-encrypt path; the
// resulting frame's digest must equal digestToMatch or the encryptor
// fails with ErrReencryptedDigestMismatch.
func ForcedBackupIV(iv, digestToMatch []byte) *DangerousIV {
	return &DangerousIV{Reason: DangerousIVReencryptingForBackup, IV: iv, DigestToMatch: digestToMatch}
}

// IntegrityMode is the tagged union spec.md §4.4 calls the decryptor's
// integrity policy: which checks run beyond the always-mandatory MAC
// verification.
type IntegrityMode struct {
	kind        integrityKind
	theirDigest []byte
}

type integrityKind int

const (
	integrityStandard integrityKind = iota
	integrityLocal
	integrityBackupThumbnail
)

// StandardIntegrity requires the computed digest to match theirDigest in
// constant time, in addition to the mandatory MAC check.
func StandardIntegrity(theirDigest []byte) IntegrityMode {
	return IntegrityMode{kind: integrityStandard, theirDigest: theirDigest}
}

// LocalIntegrity skips the digest comparison: the ciphertext was produced
// locally by this same client.
func LocalIntegrity() IntegrityMode {
	return IntegrityMode{kind: integrityLocal}
}

// BackupThumbnailIntegrity skips the digest comparison: the ciphertext is
// a thumbnail generated client-side after download.
func BackupThumbnailIntegrity() IntegrityMode {
	return IntegrityMode{kind: integrityBackupThumbnail}
}

func (m IntegrityMode) checksDigest() bool {
	return m.kind == integrityStandard
}

// OuterKeys carries the independent (aesKey, macKey) pair used to peel an
// outer encryption layer before decrypting the inner frame.
type OuterKeys struct {
	AESKey []byte
	MACKey []byte
}

// EncryptOptions configures a single EncryptAttachment call.
type EncryptOptions struct {
	// DangerousIV forces a specific IV instead of a fresh random one.
	// Gated by Engine.IsTestEnvironment except for the always-allowed
	// reencryptingForBackup digest-matching use.
	DangerousIV *DangerousIV

	// SkipPadding omits the appendPadding stage entirely. Permitted
	// only in a test environment.
	SkipPadding bool

	// Sink receives the ciphertext frame. If nil, the pipeline still
	// runs (computing digest, IV, and plaintext hash) but discards its
	// output; this is how an in-memory digest/hash/size is obtained
	// without persisting anything.
	Sink io.Writer

	// IDForLogging is attached to any error this call surfaces.
	IDForLogging string
}

// DecryptOptions configures a single decrypt or re-encrypt call.
type DecryptOptions struct {
	// CiphertextPath is the relative path of the ciphertext, opened
	// through the storage of the call (the Engine's own Storage for the
	// sink-only variant). Ignored by every variant when Reader is set.
	CiphertextPath string

	// Reader supplies the ciphertext directly, bypassing storage.
	Reader io.Reader

	IDForLogging string

	// Size is the declared unpadded plaintext length. Must be >= 0.
	Size int64

	AESKey []byte
	MACKey []byte

	// KeysBase64, if non-empty, is decoded and split in place of
	// AESKey/MACKey.
	KeysBase64 string

	Integrity IntegrityMode

	// Outer, if non-nil, is peeled as an outer encryption layer before
	// the inner frame is processed.
	Outer *OuterKeys
}

// EncryptedResult is the record returned by a successful encryption.
type EncryptedResult struct {
	Digest         [DigestLength]byte
	IV             [IVLength]byte
	PlaintextHash  string
	CiphertextSize int64
}

// DecryptedResult is the record returned by a successful decryption.
// Path is empty for the sink-only variant.
type DecryptedResult struct {
	IV            [IVLength]byte
	PlaintextHash string
	Path          string
}

// ReencryptedResult is the record returned by a successful
// decrypt-then-reencrypt pass. Version is always 2.
type ReencryptedResult struct {
	Path          string
	IV            string // base64
	LocalKey      string // base64 combined key
	PlaintextHash string
	Version       int
}

// FileOpener is the minimal storage capability PlaintextSource needs to
// resolve a path-backed source; satisfied by absfs.FileSystem through
// the storage.go adapter.
type FileOpener interface {
	OpenRead(relPath string) (io.ReadCloser, error)
}

// Engine bundles the collaborator interfaces spec.md §6 calls
// `pathResolver`, `padTarget`, `randomBytes`, and `nowIsTestEnvironment`,
// plus the storage and logger every file-producing operation needs. The
// zero value is not usable; construct with NewEngine.
type Engine struct {
	Storage Storage

	// PadTarget rounds a logical plaintext length up to a policy
	// bucket. Must satisfy PadTarget(n) >= n and be deterministic.
	PadTarget func(int64) int64

	// RandomBytes supplies n cryptographically secure random bytes.
	RandomBytes func(int) ([]byte, error)

	// IsTestEnvironment gates the dangerousIv{reason:"test"} and
	// SkipPadding escape hatches.
	IsTestEnvironment func() bool

	Logger Logger

	// BufferSize is the chunk size runPipeline reads in. Zero means
	// defaultBufferSize.
	BufferSize int
}

// EngineOption configures an Engine built with NewEngine.
type EngineOption func(*Engine)

// WithStorage overrides the default storage backend.
func WithStorage(s Storage) EngineOption {
	return func(e *Engine) { e.Storage = s }
}

// WithPadTarget overrides the default padding policy.
func WithPadTarget(f func(int64) int64) EngineOption {
	return func(e *Engine) { e.PadTarget = f }
}

// WithRandomBytes overrides the default CSPRNG.
func WithRandomBytes(f func(int) ([]byte, error)) EngineOption {
	return func(e *Engine) { e.RandomBytes = f }
}

// WithIsTestEnvironment overrides the default test-environment probe.
func WithIsTestEnvironment(f func() bool) EngineOption {
	return func(e *Engine) { e.IsTestEnvironment = f }
}

// WithLogger overrides the default logger.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) { e.Logger = l }
}

// WithBufferSize overrides the pipeline's read chunk size.
func WithBufferSize(n int) EngineOption {
	return func(e *Engine) { e.BufferSize = n }
}

// NewEngine builds an Engine with sensible defaults: an in-memory
// storage backend, a conservative power-of-two-bucket padder, and a
// test-environment probe based on whether the process was built as a
// test binary.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		Storage:           newMemStorage(),
		PadTarget:         defaultPadTarget,
		RandomBytes:       defaultRandomBytes,
		IsTestEnvironment: defaultIsTestEnvironment,
		Logger:            NewLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultIsTestEnvironment() bool {
	return flag.Lookup("test.v") != nil
}
