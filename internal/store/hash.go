package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/jward/semindex/internal/model"
)

// ContentHash returns the hex xxh3 digest of a file's bytes.
func ContentHash(src []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(src))
}

// SignatureHash computes a deterministic hash from a definition's semantic
// identity: id, kind, enclosing symbol and details. Location and
// documentation changes do not affect it.
func SignatureHash(def *model.SymbolDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id:%s\n", def.SymbolID)
	fmt.Fprintf(&b, "kind:%s\n", def.Kind)
	fmt.Fprintf(&b, "enclosing:%s\n", model.Deref(def.EnclosingSymbol))
	if !def.Details.IsZero() {
		details, err := json.Marshal(def.Details)
		if err == nil {
			fmt.Fprintf(&b, "details:%s\n", details)
		}
	}
	return fmt.Sprintf("%016x", xxh3.HashString(b.String()))
}
