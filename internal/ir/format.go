package ir

import (
	"fmt"
	"strings"
)

// Dump returns a full textual rendering of the CFG, for debugging and for
// cmd/dexopt's before/after output. Mirrors the teacher's Builder.Format method.
func (c *IRCode) Dump() string {
	var b strings.Builder
	for _, blk := range c.blocks {
		if !blk.Valid() {
			continue
		}
		fmt.Fprintln(&b, blk.FormatHeader())
		for cur := blk.Root(); cur != nil; cur = cur.Next() {
			fmt.Fprintf(&b, "\t%s\n", cur.Format())
		}
		if len(blk.CatchHandlers()) > 0 {
			names := make([]string, len(blk.CatchHandlers()))
			for i, h := range blk.CatchHandlers() {
				names[i] = h.Name()
			}
			fmt.Fprintf(&b, "\t; catch -> %s\n", strings.Join(names, ", "))
		}
	}
	return b.String()
}
