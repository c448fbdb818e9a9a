package util

import (
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"simple", []byte("hello world")},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0xFF}},
		{"large", make([]byte, 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checksum1 := Checksum(tt.data)
			checksum2 := Checksum(tt.data)

			if checksum1 != checksum2 {
				t.Errorf("Checksums should be deterministic: %d != %d", checksum1, checksum2)
			}
		})
	}
}

func TestSealAndOpenRecord(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"simple", []byte("hello world")},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed := SealRecord(tt.data)

			if len(sealed) != len(tt.data)+4 {
				t.Errorf("Expected length %d, got %d", len(tt.data)+4, len(sealed))
			}

			payload, ok := OpenRecord(sealed)
			if !ok {
				t.Error("Checksum validation failed")
			}

			if len(payload) != len(tt.data) {
				t.Errorf("Payload length mismatch: expected %d, got %d", len(tt.data), len(payload))
			}
			for i := range tt.data {
				if payload[i] != tt.data[i] {
					t.Errorf("Payload mismatch at index %d: expected %d, got %d", i, tt.data[i], payload[i])
				}
			}
		})
	}
}

func TestOpenRecordCorrupted(t *testing.T) {
	sealed := SealRecord([]byte("test data"))

	sealed[len(sealed)-1] ^= 0xFF

	if _, ok := OpenRecord(sealed); ok {
		t.Error("Corrupted record should fail validation")
	}
}

func TestOpenRecordTooShort(t *testing.T) {
	if _, ok := OpenRecord([]byte{0x01, 0x02}); ok {
		t.Error("Record shorter than 4 bytes should fail validation")
	}
}

func BenchmarkChecksum(b *testing.B) {
	data := make([]byte, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Checksum(data)
	}
}
