package crypto

import "runtime"

// Zeroize clears a derived key once it is no longer needed.
func Zeroize(key *[KeySize]byte) {
	if key == nil {
		return
	}
	zeroize(key[:])
}

// ZeroizeBytes clears a plaintext buffer once it is no longer needed.
func ZeroizeBytes(b []byte) {
	zeroize(b)
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// Keep the writes from being optimized away.
	runtime.KeepAlive(b)
}
