package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, enough to tell configurations apart in logs.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ComputeMapHash hashes a map in sorted key order
func ComputeMapHash(values map[string]interface{}) Hash {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString("=")
		data.WriteString(fmt.Sprintf("%v", values[key]))
		data.WriteString(";")
	}

	return NewHash([]byte(data.String()))
}

// ComputeRunFingerprint hashes everything that determines a run's outcome so
// two runs can be checked for replay equivalence.
func ComputeRunFingerprint(pipelineIDs []string, randomStates []int64, options map[string]interface{}) Hash {
	ids := append([]string(nil), pipelineIDs...)
	sort.Strings(ids)

	var data strings.Builder
	data.WriteString("pipelines:")
	data.WriteString(strings.Join(ids, ","))
	data.WriteString("|seeds:")
	for i, s := range randomStates {
		if i > 0 {
			data.WriteString(",")
		}
		data.WriteString(fmt.Sprintf("%d", s))
	}
	data.WriteString("|options:")
	data.WriteString(ComputeMapHash(options).String())

	return NewHash([]byte(data.String()))
}
