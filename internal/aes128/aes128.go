package aes128

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the only key length AES-128 accepts, which is also the AES
// block and IV size.
const KeySize = 16

// ParseIV decodes a hex-encoded IV, accepting an optional 0x/0X prefix, and
// requires exactly 16 bytes.
func ParseIV(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	iv, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode IV hex %q: %w", s, err)
	}
	if len(iv) != KeySize {
		return nil, fmt.Errorf("invalid IV length: %d bytes (expected %d)", len(iv), KeySize)
	}
	return iv, nil
}

// SequenceIV encodes a media sequence number as a big-endian 16-byte IV.
// Playlists that omit an explicit IV use the segment's sequence number.
func SequenceIV(n uint64) []byte {
	iv := make([]byte, KeySize)
	binary.BigEndian.PutUint64(iv[8:], n)
	return iv
}

// Decrypt runs AES-128 in CBC mode over data with the given key and IV.
func Decrypt(data, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: %d bytes (expected %d)", len(key), KeySize)
	}
	if len(iv) != KeySize {
		return nil, fmt.Errorf("invalid IV length: %d bytes (expected %d)", len(iv), KeySize)
	}
	if len(data)%aes.BlockSize != 0 {
		// CryptBlocks panics on partial blocks, so reject them up front.
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the AES block size", len(data))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, data)
	return plaintext, nil
}

// StripPadding removes trailing PKCS#7 padding if the tail looks like valid
// padding: a final byte p in [1,16] preceded by p-1 more copies of p.
// Anything else passes through unchanged, which tolerates segments that are
// not block-padded at the cost of false positives when real payload data
// ends in a run of equal bytes.
func StripPadding(buf []byte) []byte {
	if len(buf) == 0 {
		return buf
	}
	p := int(buf[len(buf)-1])
	if p < 1 || p > KeySize || p > len(buf) {
		return buf
	}
	for i := len(buf) - p; i < len(buf); i++ {
		if int(buf[i]) != p {
			return buf
		}
	}
	return buf[:len(buf)-p]
}
