package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Compressor encodes point blocks before they hit the key-value store.
// Steps are delta encoded as uvarints (they are non-decreasing, so deltas are
// small), values are XOR encoded against the previous value; both streams are
// then zstd compressed.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a compressor. Levels map 1..4 onto zstd speed tiers.
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{encoder: encoder, decoder: decoder}, nil
}

// CompressSteps delta encodes and compresses a non-decreasing step sequence.
func (c *Compressor) CompressSteps(steps []uint64) ([]byte, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(steps)*binary.MaxVarintLen64)
	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], steps[0])
	buf = append(buf, scratch[:n]...)

	for i := 1; i < len(steps); i++ {
		if steps[i] < steps[i-1] {
			return nil, fmt.Errorf("steps out of order: %d after %d", steps[i], steps[i-1])
		}
		n := binary.PutUvarint(scratch[:], steps[i]-steps[i-1])
		buf = append(buf, scratch[:n]...)
	}

	return c.encoder.EncodeAll(buf, make([]byte, 0, len(buf))), nil
}

// DecompressSteps reverses CompressSteps for a block of count points.
func (c *Compressor) DecompressSteps(data []byte, count int) ([]uint64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	steps := make([]uint64, count)

	first, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode first step: %w", err)
	}
	steps[0] = first

	for i := 1; i < count; i++ {
		delta, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to decode step delta %d: %w", i, err)
		}
		steps[i] = steps[i-1] + delta
	}

	return steps, nil
}

// CompressValues XOR encodes and compresses float64 values.
func (c *Compressor) CompressValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, math.Float64bits(values[0])); err != nil {
		return nil, err
	}

	prevBits := math.Float64bits(values[0])
	for i := 1; i < len(values); i++ {
		currentBits := math.Float64bits(values[i])
		if err := binary.Write(buf, binary.LittleEndian, currentBits^prevBits); err != nil {
			return nil, err
		}
		prevBits = currentBits
	}

	return c.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len())), nil
}

// DecompressValues reverses CompressValues for a block of count points.
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	buf := bytes.NewReader(decompressed)
	values := make([]float64, count)

	var firstBits uint64
	if err := binary.Read(buf, binary.LittleEndian, &firstBits); err != nil {
		return nil, err
	}
	values[0] = math.Float64frombits(firstBits)

	prevBits := firstBits
	for i := 1; i < count; i++ {
		var xorBits uint64
		if err := binary.Read(buf, binary.LittleEndian, &xorBits); err != nil {
			return nil, err
		}
		currentBits := xorBits ^ prevBits
		values[i] = math.Float64frombits(currentBits)
		prevBits = currentBits
	}

	return values, nil
}

// Close releases encoder and decoder resources.
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
