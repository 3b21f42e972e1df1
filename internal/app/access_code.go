package app

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	accessCodeLength   = 6
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	accessCodeAttempts = 16
)

// codeGenerator produces random access codes. math/rand.Rand is not safe for
// concurrent use, hence the mutex.
type codeGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newCodeGenerator() *codeGenerator {
	return &codeGenerator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *codeGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, accessCodeLength)
	for i := range buf {
		buf[i] = accessCodeAlphabet[g.rnd.Intn(len(accessCodeAlphabet))]
	}
	return string(buf)
}

// NormalizeAccessCode upper-cases and trims a user-entered code.
func NormalizeAccessCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidAccessCode reports whether code has the persisted shape: six uppercase alphanumerics.
func ValidAccessCode(code string) bool {
	if len(code) != accessCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(accessCodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
