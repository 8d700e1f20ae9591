////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/inbound"
)

// sessionsCmd lists the stored inbound sessions without opening their
// ratchets.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Lists the stored inbound group sessions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kv := openKV()
		records, err := inbound.ListStoredRecords(kv)
		if err != nil {
			jww.FATAL.Panicf("Failed to list sessions: %+v", err)
		}

		fmt.Printf("%d inbound session(s)\n", len(records))
		for _, rec := range records {
			origin := "direct"
			if rec.Forwarded() {
				origin = fmt.Sprintf("forwarded via %d hop(s)",
					len(rec.ForwardingChain))
			}
			fmt.Printf("  %s room=%s sender=%s firstIndex=%d (%s)\n",
				rec.SessionID, rec.RoomID, rec.SenderKey,
				rec.FirstKnownIndex, origin)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
