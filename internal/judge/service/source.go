package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"koodecode/internal/common/storage"
	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
)

// downloadSource fetches the submitted code and checks it against the hash
// recorded at submit time.
func (s *Service) downloadSource(ctx context.Context, payload model.JudgeMessage) (string, error) {
	ctxStorage := ctx
	if s.storageTimeout > 0 {
		var cancel context.CancelFunc
		ctxStorage, cancel = context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()
	}
	reader, err := s.storage.GetObject(ctxStorage, s.sourceBucket, payload.SourceKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", appErr.Wrapf(err, appErr.InvalidParams, "source %s not found", payload.SourceKey)
		}
		return "", appErr.Wrapf(err, appErr.StorageError, "download source failed")
	}
	defer reader.Close()

	var buf bytes.Buffer
	hasher := sha256.New()
	tee := io.TeeReader(io.LimitReader(reader, s.maxSourceBytes+1), hasher)
	if _, err := io.Copy(&buf, tee); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source failed")
	}
	if int64(buf.Len()) > s.maxSourceBytes {
		return "", appErr.Newf(appErr.InvalidParams, "source exceeds %d bytes", s.maxSourceBytes)
	}
	if payload.SourceHash != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, payload.SourceHash) {
			return "", appErr.New(appErr.SourceIntegrityFailed).WithMessage("source hash mismatch")
		}
	}
	return buf.String(), nil
}
