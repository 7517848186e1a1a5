// Package protocol defines the ID type used to name application
// and transport-layer wire protocols during multistream-select negotiation.
package protocol

// ID names a wire protocol, e.g. "/ipfs/id/1.0.0" or "/libp2p/noise".
type ID string

// HasPrefix reports whether id starts with the given prefix protocol,
// useful for matching versioned protocol families.
func (id ID) HasPrefix(prefix ID) bool {
	return len(id) >= len(prefix) && id[:len(prefix)] == prefix
}

// ConvertFromStrings converts a slice of strings to a slice of protocol IDs.
func ConvertFromStrings(strs []string) []ID {
	ids := make([]ID, len(strs))
	for i, s := range strs {
		ids[i] = ID(s)
	}
	return ids
}

// ConvertToStrings converts a slice of protocol IDs to plain strings.
func ConvertToStrings(ids []ID) []string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = string(id)
	}
	return strs
}
