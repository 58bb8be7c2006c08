package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// TransactionHash derives the stable content key for a logical write.
//
// The hash covers (source, target, statement, logical transaction id), so
// two failures of the same logical write collapse into one pending entry,
// while the same statement re-issued under a new transaction id is a new
// entry. Field boundaries are length-prefixed so that no concatenation of
// statement and id can collide with a different split of the same bytes.
func TransactionHash(sourceNode, targetNode int, statement, logicalTxID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%d:%s|%d:%s", sourceNode, targetNode,
		len(statement), statement, len(logicalTxID), logicalTxID)
	return hex.EncodeToString(h.Sum(nil))
}
