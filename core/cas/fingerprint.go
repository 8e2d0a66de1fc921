package cas

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/msakit/core/msa"
)

// Fingerprint identifies an alignment by content. It is a BLAKE3 hash over
// the records in order (id, sequence, sorted record annotations), then the
// sorted alignment annotations, then the sorted column annotations. Every
// string is length-prefixed so no two alignments share an encoding.
//
// Record order is significant: the same rows in a different order have a
// different fingerprint.
func Fingerprint(a *msa.Alignment) string {
	h := blake3.New()

	records := a.Records()
	writeUint(h, uint64(len(records)))
	for _, r := range records {
		writeString(h, r.ID())
		writeString(h, r.Sequence())
		writeMap(h, r.Annotations())
	}
	writeMap(h, a.Annotations())
	writeMap(h, a.ColumnAnnotations())

	return hex.EncodeToString(h.Sum(nil))
}

func writeMap(h hash.Hash, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeUint(h, uint64(len(keys)))
	for _, k := range keys {
		writeString(h, k)
		writeString(h, m[k])
	}
}

func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeUint(h hash.Hash, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}
