////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/megolm/replay"
)

// replayCmd lists the replay-detection records.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Lists the replay-detection records",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kv := openKV()
		guard, err := replay.NewGuard(kv)
		if err != nil {
			jww.FATAL.Panicf("Failed to load replay records: %+v",
				err)
		}

		records := guard.List()
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Printf("%d replay record(s)\n", len(records))
		for _, k := range keys {
			rec := records[k]
			fmt.Printf("  %s event=%s at %s\n", k, rec.EventID,
				rec.Timestamp.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
