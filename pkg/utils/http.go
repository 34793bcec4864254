package utils

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JSONError writes a JSON error response with the given status code and
// message. It ensures the Content-Type is set to application/json.
func JSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// JSONWrite writes the provided value as JSON with the given status code.
func JSONWrite(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	return json.NewEncoder(w).Encode(v)
}

// GenConnID returns a unique connection id: wall-clock prefix for log
// readability plus random suffix for uniqueness.
func GenConnID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("c-%d-%s", time.Now().UTC().UnixNano(), hex.EncodeToString(b[:]))
}

// GenInstanceID returns a unique hub instance id for the relay.
func GenInstanceID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "hub-" + hex.EncodeToString(b[:])
}
