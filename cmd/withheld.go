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

	"gitlab.com/elixxir/megolm/withheld"
)

// withheldCmd lists the recorded withheld-key notifications.
var withheldCmd = &cobra.Command{
	Use:   "withheld",
	Short: "Lists the recorded withheld-key notifications",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kv := openKV()
		registry, err := withheld.NewRegistry(kv)
		if err != nil {
			jww.FATAL.Panicf("Failed to load withheld records: %+v",
				err)
		}

		records := registry.List()
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Printf("%d withheld record(s)\n", len(records))
		for _, k := range keys {
			rec := records[k]
			fmt.Printf("  %s code=%s reason=%q\n", k, rec.Code,
				rec.Reason)
		}
	},
}

func init() {
	rootCmd.AddCommand(withheldCmd)
}
