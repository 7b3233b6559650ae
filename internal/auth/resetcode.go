package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const resetCodeLength = 6

// generateResetCode draws each digit independently and uniformly from 0-9.
func generateResetCode() (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < resetCodeLength; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate reset code: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// validResetCodeShape reports whether code is exactly six ASCII digits
func validResetCodeShape(code string) bool {
	if len(code) != resetCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// hashResetCode returns SHA-256(phone:code:salt) as hex for DB storage
func hashResetCode(phone, code, salt string) string {
	data := fmt.Sprintf("%s:%s:%s", phone, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// maskPhone keeps the leading "+", the first digit and the last two: +7*********67
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	head := 1
	if strings.HasPrefix(phone, "+") {
		head = 2
	}
	return phone[:head] + strings.Repeat("*", len(phone)-head-2) + phone[len(phone)-2:]
}
