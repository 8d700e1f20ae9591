////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/megolm/storage/versioned"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "megolmtool",
	Short: "Inspects a group-messaging session store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// openKV opens the encrypted store the subcommands read from.
func openKV() *versioned.KV {
	initLog(viper.GetUint("logLevel"), viper.GetString("log"))

	storeDir := viper.GetString("store")
	password := viper.GetString("password")
	fs, err := ekv.NewFilestore(storeDir, password)
	if err != nil {
		jww.FATAL.Panicf("Failed to open store at %q: %+v",
			storeDir, err)
	}
	return versioned.NewKV(fs)
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.SetStdoutThreshold(jww.LevelWarn)
		jww.SetLogThreshold(jww.LevelWarn)
	}
}

func initConfig() {
	cfgFile := viper.GetString("config")
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Unable to read config file (%s): %s\n", cfgFile,
			err.Error())
		os.Exit(1)
	}
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "",
		"Path to a config file")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().UintP("logLevel", "v", 0,
		"Verbosity of logging: 0 = warnings, 1 = debug, 2+ = trace")
	viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("logLevel"))

	rootCmd.PersistentFlags().StringP("log", "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().StringP("store", "s", "megolm-store",
		"Path to the session store directory")
	viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))

	rootCmd.PersistentFlags().StringP("password", "p", "",
		"Password to the session store")
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
}
