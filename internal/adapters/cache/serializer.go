package cache

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Envelope layout: magic (2 bytes), version (1 byte), flags (1 byte), payload.
// When the encrypted flag is set the payload is nonce || AES-GCM ciphertext.
// Data without the magic header passes through Unwrap untouched so values
// written by other services (or before the envelope existed) stay readable.
const (
	envelopeMagic0  = 0xC5
	envelopeMagic1  = 0x18
	envelopeVersion = 0x01

	flagCompressed = 1 << 0
	flagEncrypted  = 1 << 1

	envelopeHeaderLen = 4
	gcmNonceLen       = 12
)

var errEnvelope = errors.New("malformed cache envelope")

// SerializerConfig carries the transform knobs from bootstrap.
type SerializerConfig struct {
	CompressionEnabled   bool
	CompressionThreshold int
	CompressionAlgorithm string
	EncryptionEnabled    bool
	EncryptionSecret     string
}

// Serializer converts values to and from wire bytes. Pure, no I/O: the fixed
// order is encode, then compress, then encrypt, reversed on the way out.
type Serializer struct {
	cfg     SerializerConfig
	aead    cipher.AEAD
	metrics *Recorder
}

// NewSerializer validates the transform configuration and derives the AEAD
// key from the configured secret via HKDF-SHA256.
func NewSerializer(cfg SerializerConfig, metrics *Recorder) (*Serializer, error) {
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = 1024
	}
	if cfg.CompressionAlgorithm == "" {
		cfg.CompressionAlgorithm = "gzip"
	}
	if cfg.CompressionAlgorithm != "gzip" {
		return nil, fmt.Errorf("unsupported compression algorithm %q", cfg.CompressionAlgorithm)
	}

	s := &Serializer{cfg: cfg, metrics: metrics}
	if cfg.EncryptionEnabled {
		if cfg.EncryptionSecret == "" {
			return nil, errors.New("encryption enabled but no secret configured")
		}
		key := make([]byte, 32)
		kdf := hkdf.New(sha256.New, []byte(cfg.EncryptionSecret), nil, []byte("m18-cache-envelope-v1"))
		if _, err := io.ReadFull(kdf, key); err != nil {
			return nil, fmt.Errorf("derive envelope key: %w", err)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("init envelope cipher: %w", err)
		}
		s.aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("init envelope aead: %w", err)
		}
	}
	return s, nil
}

// Marshal JSON-encodes the value and wraps it in the envelope.
func (s *Serializer) Marshal(v any, compress, encrypt bool) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return s.Wrap(raw, compress, encrypt)
}

// Unmarshal unwraps the envelope and JSON-decodes into v. Unlike the raw Get
// path, a decode failure here is fatal to the call: the caller asked for a
// concrete type.
func (s *Serializer) Unmarshal(data []byte, v any) error {
	raw, err := s.Unwrap(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}

// Wrap applies compression and encryption per the flags and the configured
// enables, and prefixes the self-describing header.
func (s *Serializer) Wrap(data []byte, compress, encrypt bool) ([]byte, error) {
	payload := data
	var flags byte

	if compress && s.cfg.CompressionEnabled && len(data) > s.cfg.CompressionThreshold {
		compressed, err := gzipCompress(data)
		switch {
		case err != nil:
			if s.metrics != nil {
				s.metrics.RecordCompressionFailure()
			}
		case len(compressed) < len(data):
			if s.metrics != nil {
				s.metrics.RecordCompressionSaved(int64(len(data) - len(compressed)))
			}
			payload = compressed
			flags |= flagCompressed
		}
	}

	if encrypt && s.cfg.EncryptionEnabled {
		if s.aead == nil {
			return nil, errors.New("encryption requested but not configured")
		}
		nonce := make([]byte, gcmNonceLen)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("envelope nonce: %w", err)
		}
		sealed := s.aead.Seal(nil, nonce, payload, nil)
		payload = append(nonce, sealed...)
		flags |= flagEncrypted
	}

	out := make([]byte, 0, envelopeHeaderLen+len(payload))
	out = append(out, envelopeMagic0, envelopeMagic1, envelopeVersion, flags)
	return append(out, payload...), nil
}

// Unwrap reverses Wrap. Input without a recognizable header is returned
// untouched; a header whose declared transforms cannot be applied is an
// error for this single call.
func (s *Serializer) Unwrap(data []byte) ([]byte, error) {
	if !isEnveloped(data) {
		return data, nil
	}
	flags := data[3]
	payload := data[envelopeHeaderLen:]

	if flags&flagEncrypted != 0 {
		if s.aead == nil {
			return nil, fmt.Errorf("%w: encrypted payload but encryption not configured", errEnvelope)
		}
		if len(payload) < gcmNonceLen {
			return nil, fmt.Errorf("%w: truncated nonce", errEnvelope)
		}
		opened, err := s.aead.Open(nil, payload[:gcmNonceLen], payload[gcmNonceLen:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errEnvelope, err)
		}
		payload = opened
	}

	if flags&flagCompressed != 0 {
		expanded, err := gzipDecompress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errEnvelope, err)
		}
		payload = expanded
	}
	return payload, nil
}

func isEnveloped(data []byte) bool {
	return len(data) >= envelopeHeaderLen &&
		data[0] == envelopeMagic0 &&
		data[1] == envelopeMagic1 &&
		data[2] == envelopeVersion &&
		data[3]&^(flagCompressed|flagEncrypted) == 0
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
