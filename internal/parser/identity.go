package parser

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BlockPrefixLen is how much of a review block's visible text identifies it
// before field extraction.
const BlockPrefixLen = 200

// ReviewID is the stable identity of a record: the hex md5 of its
// distinguishing fields concatenated in order.
func ReviewID(fields ...string) string {
	sum := md5.Sum([]byte(strings.Join(fields, "")))
	return hex.EncodeToString(sum[:])
}

// BlockKey identifies a rendered review block by the first BlockPrefixLen
// characters of its visible text.
func BlockKey(text string) string {
	runes := []rune(text)
	if len(runes) > BlockPrefixLen {
		runes = runes[:BlockPrefixLen]
	}
	return strconv.FormatUint(xxhash.Sum64String(string(runes)), 16)
}
