package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/scriptorium/core"
)

const (
	knowledgePrefix = "knorec:"
	knowledgeIDSeq  = "knorecseq"
)

// makeKnowledgeKey generates a key for a knowledge record.
// Format: prefix + 8-byte big endian ID, so prefix iteration follows ID order.
func makeKnowledgeKey(id core.ID) []byte {
	buf := make([]byte, len(knowledgePrefix)+8)
	offset := copy(buf, knowledgePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", processorType))
}
