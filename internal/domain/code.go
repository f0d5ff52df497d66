package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// RoomCodeLength is the fixed length of generated room codes.
const RoomCodeLength = 6

// NewRoomCode generates a room code from a cryptographically random source.
func NewRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// ValidRoomCode reports whether a string is a well-formed room code.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		found := false
		for j := 0; j < len(codeAlphabet); j++ {
			if code[i] == codeAlphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
