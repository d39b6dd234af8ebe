package tasks

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// Signer produces a detached signature over challenge data with the
// certificate identified by thumbprint. The concrete CryptoPro invocation
// sits behind this interface so tests can swap it out.
type Signer interface {
	Sign(ctx context.Context, data string, thumbprint string) (string, error)
}

// CryptCPSigner shells out to the CryptCP executable to produce a DER
// detached signature, returned base64-encoded as the sign-in endpoint
// expects.
type CryptCPSigner struct {
	// Path to the cryptcp binary.
	Path string

	// PIN is passed to cryptcp when the container requires one. Empty means
	// no -pin argument.
	PIN string

	// WorkDir holds the data/signature scratch files. Defaults to the OS
	// temp directory.
	WorkDir string
}

// Sign writes the challenge data to a scratch file, invokes cryptcp against
// the thumbprint, and returns the base64 signature.
func (s *CryptCPSigner) Sign(ctx context.Context, data string, thumbprint string) (string, error) {
	logger := zap.L().With(zap.String("task", "sign"), zap.String("thumbprint", thumbprint))

	workDir := s.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	dataFile := filepath.Join(workDir, "data_to_sign.txt")
	sigFile := filepath.Join(workDir, "signature.sig")

	if err := os.WriteFile(dataFile, []byte(data), 0o600); err != nil {
		return "", fmt.Errorf("write data to sign: %w", err)
	}
	defer os.Remove(dataFile)
	defer os.Remove(sigFile)

	args := []string{"-sign", "-der", "-thumbprint", thumbprint, dataFile, sigFile}
	if s.PIN != "" {
		args = append(args, "-pin", s.PIN)
	}

	cmd := exec.CommandContext(ctx, s.Path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("cryptcp failed", zap.Error(err), zap.ByteString("output", output))
		return "", fmt.Errorf("cryptcp sign: %w", err)
	}

	sig, err := os.ReadFile(sigFile)
	if err != nil {
		return "", fmt.Errorf("read signature file: %w", err)
	}
	logger.Info("signature produced", zap.Int("bytes", len(sig)))
	return encodeSignature(sig), nil
}

// encodeSignature base64-encodes raw signature bytes, passing through data
// that is already valid base64 (some tool versions emit it pre-encoded).
func encodeSignature(sig []byte) string {
	if _, err := base64.StdEncoding.DecodeString(string(sig)); err == nil {
		return string(sig)
	}
	return base64.StdEncoding.EncodeToString(sig)
}
