package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes keep hashes of different record types apart. The version
// suffix leaves room for changing the algorithm.
const (
	DomainValue = "statewire/value/v1"
	DomainGraph = "statewire/graph/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The separator rules
// out domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValueHash is the content hash of v's canonical form.
func ValueHash(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueHash: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// GraphHash is the content hash of a compiled graph. Two definitions that
// lower to the same GraphSpec share a hash regardless of source formatting.
func GraphHash(g *GraphSpec) (string, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("GraphHash: marshal: %w", err)
	}
	v, err := Unmarshal(data)
	if err != nil {
		return "", fmt.Errorf("GraphHash: %w", err)
	}
	canonical, err := MarshalCanonical(Object{
		"schema": String(SchemaVersion),
		"graph":  v,
	})
	if err != nil {
		return "", fmt.Errorf("GraphHash: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// MustValueHash is like ValueHash but panics on error. Use only in tests.
func MustValueHash(v Value) string {
	h, err := ValueHash(v)
	if err != nil {
		panic(err)
	}
	return h
}
