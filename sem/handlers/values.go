package handlers

import (
	"strconv"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/teranos/semstore/errors"
)

// MaxHashLength bounds the indexed text column of long values
const MaxHashLength = 72

// boundedHash returns the indexable form of s and the overflow payload.
// Short strings are stored as-is with no overflow; longer ones keep a
// prefix followed by a hex digest of the whole string.
func boundedHash(s string) (string, []byte) {
	if len(s) <= MaxHashLength {
		return s, nil
	}
	digest := strconv.FormatUint(xxhash.Sum64String(s), 16)
	for len(digest) < 16 {
		digest = "0" + digest
	}
	cut := MaxHashLength - len(digest)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + digest, []byte(s)
}

func rowString(row Row, col string) (string, bool) {
	switch v := row[col].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case nil:
		return "", false
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	}
	return "", false
}

func rowInt(row Row, col string) (int64, error) {
	switch v := row[col].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(col, string(v))
	case string:
		return parseInt(col, v)
	case nil:
		return 0, errors.DataCorruption("column %s is NULL", col)
	}
	return 0, errors.DataCorruption("column %s has unexpected type %T", col, row[col])
}

func parseInt(col, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.DataCorruption("column %s: malformed integer %q", col, s)
	}
	return n, nil
}

// nullableBlob turns an overflow payload into a column value
func nullableBlob(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}
