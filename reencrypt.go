package attachcrypto

import (
	"context"
	"encoding/base64"
	"io"
	"sync"
)

// DecryptAndReencryptLocally decrypts the ciphertext described by opts
// and simultaneously re-encrypts the recovered plaintext under a freshly
// generated local key, writing a single output file. The plaintext is
// never materialized on disk: the decryptor's output and the encryptor's
// input are bridged by an io.Pipe, which gives the bounded-buffer
// backpressure spec.md §4.5/§5 asks for.
func DecryptAndReencryptLocally(ctx context.Context, opts DecryptOptions, storage Storage, pathAllocator func() (string, error)) (ReencryptedResult, error) {
	return defaultEngine.DecryptAndReencryptLocally(ctx, opts, storage, pathAllocator)
}

// DecryptAndReencryptLocally is the Engine-bound form of the
// package-level function of the same name; see its documentation.
func (e *Engine) DecryptAndReencryptLocally(ctx context.Context, opts DecryptOptions, storage Storage, pathAllocator func() (string, error)) (ReencryptedResult, error) {
	result, err := e.runReencrypt(ctx, opts, storage, pathAllocator)
	if err != nil {
		logPipelineError(e.Logger, "reencrypt", opts.IDForLogging, err)
	}
	return result, err
}

func (e *Engine) runReencrypt(ctx context.Context, opts DecryptOptions, storage Storage, pathAllocator func() (string, error)) (ReencryptedResult, error) {
	localKey, err := e.RandomBytes(KeySetLength)
	if err != nil {
		return ReencryptedResult{}, err
	}

	relPath, err := pathAllocator()
	if err != nil {
		return ReencryptedResult{}, err
	}

	var decryptResult DecryptedResult
	var encryptResult EncryptedResult

	err = withGuardedOutput(storage, e.Logger, relPath, func(out io.Writer) error {
		pr, pw := io.Pipe()

		var wg sync.WaitGroup
		errCh := make(chan error, 2)

		wg.Add(1)
		go func() {
			defer wg.Done()
			dr, derr := e.DecryptAttachmentToSink(ctx, opts, pw)
			if derr != nil {
				errCh <- derr
				pw.CloseWithError(derr)
				return
			}
			decryptResult = dr
			pw.Close()
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			er, eerr := e.EncryptAttachment(ctx, PlaintextFromReader(pr), localKey, EncryptOptions{
				Sink:         out,
				IDForLogging: opts.IDForLogging,
			})
			if eerr != nil {
				errCh <- eerr
				pr.CloseWithError(eerr)
				return
			}
			encryptResult = er
		}()

		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReencryptedResult{}, err
	}

	return ReencryptedResult{
		Path:          relPath,
		IV:            base64.StdEncoding.EncodeToString(encryptResult.IV[:]),
		LocalKey:      base64.StdEncoding.EncodeToString(localKey),
		PlaintextHash: decryptResult.PlaintextHash,
		Version:       2,
	}, nil
}
