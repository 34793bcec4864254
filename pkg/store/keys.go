package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Key layout, all values JSON unless noted:
//
//	dlg:<pair>:msg:<id>   message record, scanned per dialog
//	msg:<id>              id index, value is the owning pair key
//	meta:highid           highest id ever assigned (decimal string)
//
// <id> is zero-padded to 20 digits so lexicographic order matches numeric
// order. <pair> is the canonical dialog key; identities cannot contain '|'
// or ':' past validation, so prefixes never collide.

const (
	dialogPrefix = "dlg:"
	idPrefix     = "msg:"
	highIDKey    = "meta:highid"
)

func msgKey(pair string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:msg:%020d", dialogPrefix, pair, id))
}

func dialogMsgPrefix(pair string) []byte {
	return []byte(dialogPrefix + pair + ":msg:")
}

func idKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", idPrefix, id))
}

// parseIDKey extracts the message id from an id-index key. Returns false
// for keys that do not parse; callers skip those.
func parseIDKey(k []byte) (uint64, bool) {
	s := strings.TrimPrefix(string(k), idPrefix)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// pairFromDialogKey recovers the pair portion of a dlg: message key.
func pairFromDialogKey(k []byte) (string, bool) {
	s := strings.TrimPrefix(string(k), dialogPrefix)
	i := strings.LastIndex(s, ":msg:")
	if i < 0 {
		return "", false
	}
	return s[:i], true
}
