package repository

import (
	"encoding/json"
	"fmt"
	"sync"

	"koodecode/internal/judge/model"

	"github.com/klauspost/compress/zstd"
)

// Per-case results are stored as zstd compressed JSON.
// EncodeAll and DecodeAll are safe for concurrent use.
var (
	codecOnce   sync.Once
	codecErr    error
	caseEncoder *zstd.Encoder
	caseDecoder *zstd.Decoder
)

func initCodec() error {
	codecOnce.Do(func() {
		caseEncoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		caseDecoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return codecErr
}

func encodeCases(cases []model.TestCaseExecution) ([]byte, error) {
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("init zstd codec failed: %w", err)
	}
	raw, err := json.Marshal(cases)
	if err != nil {
		return nil, fmt.Errorf("marshal cases failed: %w", err)
	}
	return caseEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func decodeCases(blob []byte) ([]model.TestCaseExecution, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if err := initCodec(); err != nil {
		return nil, fmt.Errorf("init zstd codec failed: %w", err)
	}
	raw, err := caseDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cases failed: %w", err)
	}
	var cases []model.TestCaseExecution
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("unmarshal cases failed: %w", err)
	}
	return cases, nil
}
