package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"chathub/pkg/models"
)

// Limits are the configurable message shape bounds. Identities arrive
// pre-validated from the auth collaborator, so checks here are shape
// limits, not semantic validation.
type Limits struct {
	MaxTextLen     int
	MaxFileName    int
	MaxFileBytes   uint64
	MaxIdentityLen int
}

// DefaultLimits mirror the config defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxTextLen:     16 * 1024,
		MaxFileName:    255,
		MaxFileBytes:   8 << 20,
		MaxIdentityLen: 320,
	}
}

var (
	mu     sync.RWMutex
	limits = DefaultLimits()
)

// SetLimits installs the process-wide limits. Zero fields keep their
// defaults.
func SetLimits(l Limits) {
	d := DefaultLimits()
	if l.MaxTextLen == 0 {
		l.MaxTextLen = d.MaxTextLen
	}
	if l.MaxFileName == 0 {
		l.MaxFileName = d.MaxFileName
	}
	if l.MaxFileBytes == 0 {
		l.MaxFileBytes = d.MaxFileBytes
	}
	if l.MaxIdentityLen == 0 {
		l.MaxIdentityLen = d.MaxIdentityLen
	}
	mu.Lock()
	limits = l
	mu.Unlock()
}

// CheckIdentity rejects identities that would break key layout or blow
// past sane shape limits. Empty is allowed here: an empty identity means
// an unbound connection, which is a valid state.
func CheckIdentity(s string) error {
	mu.RLock()
	max := limits.MaxIdentityLen
	mu.RUnlock()
	if s == "" {
		return nil
	}
	if len(s) > max {
		return fmt.Errorf("identity too long: %d > %d", len(s), max)
	}
	if strings.ContainsAny(s, "|:") {
		return errors.New("identity contains reserved characters")
	}
	return nil
}

// CheckMessage validates an outgoing message before it is stored.
func CheckMessage(m models.Message) error {
	mu.RLock()
	l := limits
	mu.RUnlock()

	var errs []string
	if m.To == "" {
		errs = append(errs, "recipient is required")
	}
	if err := CheckIdentity(m.To); err != nil {
		errs = append(errs, err.Error())
	}
	if len(m.Text) > l.MaxTextLen {
		errs = append(errs, fmt.Sprintf("text too long: %d > %d", len(m.Text), l.MaxTextLen))
	}
	if !m.IsFile && m.Text == "" {
		errs = append(errs, "text is required for non-file messages")
	}
	if m.IsFile {
		if m.FileName == "" {
			errs = append(errs, "file_name is required for file messages")
		}
		if len(m.FileName) > l.MaxFileName {
			errs = append(errs, fmt.Sprintf("file_name too long: %d > %d", len(m.FileName), l.MaxFileName))
		}
		if uint64(len(m.FileContent)) > l.MaxFileBytes {
			errs = append(errs, fmt.Sprintf("file too large: %d > %d", len(m.FileContent), l.MaxFileBytes))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
