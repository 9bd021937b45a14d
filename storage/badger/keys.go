package badger

import "strings"

// Key prefixes for different data types
const (
	featureRecordPrefix = "feature:"
	featureEntryPrefix  = "fentry:"
	featureTokenPrefix  = "ftoken:"
	activeImportKey     = "meta:activeimport"
)

// tokenSeparator ends the token part of a token key. Tokens only contain
// letters and digits, so the first separator is always the boundary.
const tokenSeparator = "\x00"

// makeFeatureKey generates the key of a stored record.
func makeFeatureKey(id string) []byte {
	return []byte(featureRecordPrefix + id)
}

// makeEntryKey generates the key of a feature's index entry.
func makeEntryKey(id string) []byte {
	return []byte(featureEntryPrefix + id)
}

// makeTokenKey generates a posting key for the inverted index.
// Format: prefix:token\x00id
func makeTokenKey(token, id string) []byte {
	buf := make([]byte, 0, len(featureTokenPrefix)+len(token)+len(tokenSeparator)+len(id))
	buf = append(buf, featureTokenPrefix...)
	buf = append(buf, token...)
	buf = append(buf, tokenSeparator...)
	buf = append(buf, id...)
	return buf
}

// makeTokenPrefix generates the scan prefix for every indexed token starting with token.
func makeTokenPrefix(token string) []byte {
	return []byte(featureTokenPrefix + token)
}

// parseTokenKey extracts the feature id from a posting key.
func parseTokenKey(key []byte) (string, bool) {
	rest := strings.TrimPrefix(string(key), featureTokenPrefix)
	_, id, ok := strings.Cut(rest, tokenSeparator)
	return id, ok
}

// parseEntryKey extracts the feature id from an index entry key.
func parseEntryKey(key []byte) string {
	return strings.TrimPrefix(string(key), featureEntryPrefix)
}
