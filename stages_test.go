package attachcrypto

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"
)

func TestHashTeeStageUpdatesHashAndForwards(t *testing.T) {
	var out bytes.Buffer
	h := sha256.New()
	s := newHashTee(h, &writerStage{w: &out})

	if _, err := s.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}

	if out.String() != "hello world" {
		t.Errorf("forwarded = %q, want %q", out.String(), "hello world")
	}
	want := sha256.Sum256([]byte("hello world"))
	if !bytes.Equal(h.Sum(nil), want[:]) {
		t.Error("hash did not accumulate the forwarded bytes")
	}
}

func TestSizeMeterStageReportsTotalOnClose(t *testing.T) {
	var out bytes.Buffer
	var total int64 = -1
	s := newSizeMeter(func(n int64) { total = n }, &writerStage{w: &out})

	s.Write([]byte("abc"))
	s.Write([]byte("de"))
	if total != -1 {
		t.Error("size meter callback fired before close")
	}
	if err := s.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
}

func TestIVPrependerStagePrependsOnce(t *testing.T) {
	var out bytes.Buffer
	iv := bytes.Repeat([]byte{0xAA}, IVLength)
	s := newIVPrepender(iv, &writerStage{w: &out})

	s.Write([]byte("chunk1"))
	s.Write([]byte("chunk2"))
	s.closeStage()

	want := append(append([]byte{}, iv...), []byte("chunk1chunk2")...)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("out = %x, want %x", out.Bytes(), want)
	}
}

func TestPaddingAppenderStagePadsToTarget(t *testing.T) {
	var out bytes.Buffer
	s := newPaddingAppender(func(n int64) int64 { return 10 }, &writerStage{w: &out})

	s.Write([]byte("abc"))
	if err := s.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if out.Len() != 10 {
		t.Errorf("out.Len() = %d, want 10", out.Len())
	}
	if !bytes.Equal(out.Bytes()[:3], []byte("abc")) {
		t.Errorf("prefix = %q, want %q", out.Bytes()[:3], "abc")
	}
	for _, b := range out.Bytes()[3:] {
		if b != 0 {
			t.Error("padding bytes should be zero")
		}
	}
}

func TestPaddingTrimmerStageKeepsOnlyDeclaredPrefix(t *testing.T) {
	var out bytes.Buffer
	s := newPaddingTrimmer(5, &writerStage{w: &out})

	s.Write([]byte("hello world, this is padding"))
	if err := s.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if out.String() != "hello" {
		t.Errorf("out = %q, want %q", out.String(), "hello")
	}
}

func TestCBCEncryptDecipherStagesRoundTrip(t *testing.T) {
	aesKey := bytes.Repeat([]byte{0x42}, KeyLength)
	iv := bytes.Repeat([]byte{0x01}, IVLength)
	plaintext := []byte("a message that does not end on a block boundary")

	var ciphertext bytes.Buffer
	enc, err := newCBCEncryptStage(aesKey, iv, &writerStage{w: &ciphertext})
	if err != nil {
		t.Fatalf("newCBCEncryptStage: %v", err)
	}
	enc.Write(plaintext[:10])
	enc.Write(plaintext[10:])
	if err := enc.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if ciphertext.Len()%AESBlockSize != 0 {
		t.Fatalf("ciphertext length %d is not block-aligned", ciphertext.Len())
	}

	var decrypted bytes.Buffer
	var gotIV []byte
	dec := newCBCDecipherStage(aesKey, func(v []byte) { gotIV = v }, &writerStage{w: &decrypted})
	full := append(append([]byte{}, iv...), ciphertext.Bytes()...)
	dec.Write(full[:20])
	dec.Write(full[20:])
	if err := dec.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if !bytes.Equal(gotIV, iv) {
		t.Errorf("gotIV = %x, want %x", gotIV, iv)
	}

	// cbcDecipherStage strips PKCS#7 itself, so decrypted already holds
	// exactly the original plaintext with no trailing pad block.
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("decrypted = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestCBCDecipherStageRejectsUnfinishedBlock(t *testing.T) {
	aesKey := bytes.Repeat([]byte{0x42}, KeyLength)
	var out bytes.Buffer
	dec := newCBCDecipherStage(aesKey, nil, &writerStage{w: &out})

	iv := bytes.Repeat([]byte{0x01}, IVLength)
	dec.Write(iv)
	dec.Write([]byte("not a full block")[:10]) // 10 bytes, short of AESBlockSize
	if err := dec.closeStage(); !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("closeStage with leftover bytes: err = %v, want ErrTruncatedFrame", err)
	}
}

func TestMACAppenderAndSplitterRoundTrip(t *testing.T) {
	macKey := []byte("a mac key")
	body := []byte("the frame body the mac covers")

	var withTag bytes.Buffer
	var gotTag []byte
	appender := newMACAppender(macKey, func(tag []byte) { gotTag = tag }, &writerStage{w: &withTag})
	appender.Write(body)
	if err := appender.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if len(gotTag) != MACLength {
		t.Fatalf("len(gotTag) = %d, want %d", len(gotTag), MACLength)
	}
	if withTag.Len() != len(body)+MACLength {
		t.Fatalf("withTag.Len() = %d, want %d", withTag.Len(), len(body)+MACLength)
	}

	var recoveredBody bytes.Buffer
	var splitTag []byte
	h := newHMAC(macKey)
	splitter := newMACSplitter(h, func(tag []byte) { splitTag = tag }, &writerStage{w: &recoveredBody})
	data := withTag.Bytes()
	splitter.Write(data[:5])
	splitter.Write(data[5:])
	if err := splitter.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if !bytes.Equal(recoveredBody.Bytes(), body) {
		t.Errorf("recoveredBody = %q, want %q", recoveredBody.Bytes(), body)
	}
	if !bytes.Equal(splitTag, gotTag) {
		t.Errorf("splitTag = %x, want %x", splitTag, gotTag)
	}
	if !constantTimeEqual(h.Sum(nil), gotTag) {
		t.Error("hmac computed by the splitter does not match the appended tag")
	}
}

func TestMACSplitterRejectsShortFrame(t *testing.T) {
	var out bytes.Buffer
	splitter := newMACSplitter(newHMAC([]byte("k")), nil, &writerStage{w: &out})
	splitter.Write(make([]byte, MACLength-1))
	if err := splitter.closeStage(); !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("closeStage with short frame: err = %v, want ErrTruncatedFrame", err)
	}
}

func TestFinalizerRunsOnEndAfterDrain(t *testing.T) {
	var out bytes.Buffer
	var ranAfterDrain bool
	s := newFinalizer(func() error {
		ranAfterDrain = out.Len() == 3
		return nil
	}, &writerStage{w: &out})

	s.Write([]byte("abc"))
	if err := s.closeStage(); err != nil {
		t.Fatalf("closeStage: %v", err)
	}
	if !ranAfterDrain {
		t.Error("onEnd ran before the sink received all bytes")
	}
}

func TestRunPipelineHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runPipeline(ctx, bytes.NewReader([]byte("data")), &writerStage{w: &out}, 0)
	if !errors.Is(err, ErrAborted) {
		t.Errorf("err = %v, want ErrAborted", err)
	}
}

func TestRunPipelinePropagatesReadError(t *testing.T) {
	readErr := errors.New("disk failure")
	var out bytes.Buffer
	err := runPipeline(context.Background(), &erroringReader{err: readErr}, &writerStage{w: &out}, 0)
	if !IsIOError(err) {
		t.Errorf("err = %v, want an *IOError wrapping the read failure", err)
	}
}
