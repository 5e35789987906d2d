/*
Copyright © 2025 KLS Core Contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"os"

	"github.com/spf13/cobra"

	"kotlinlsp.dev/core/internal/config"
	"kotlinlsp.dev/core/internal/logging"
)

// cfgManager binds the persistent flags below to viper and hands out
// immutable Config snapshots (internal/config.Manager), grounded on
// teacher cmd/root.go's viper-driven initConfig.
var cfgManager = config.NewManager()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kls-core",
	Short: "Kotlin language server core",
	Long: `kls-core hosts the language-agnostic backend of a JVM-language
language server: source tracking, classpath resolution, symbol
indexing, diagnostics, and go-to-definition, fronted by an LSP
transport the compiler front-end plugin supplies.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("storage-path", "", "Directory for the persistent symbol database (empty uses an in-memory store)")
	rootCmd.PersistentFlags().StringArray("workspace-root", nil, "Workspace root directory (repeatable)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log verbosity: \"debug\" also shows debug messages; any other value logs info and above")

	v := cfgManager.Viper()
	v.BindPFlag("storagePath", rootCmd.PersistentFlags().Lookup("storage-path"))
	v.BindPFlag("workspaceRoots", rootCmd.PersistentFlags().Lookup("workspace-root"))
	v.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if err := cfgManager.Load(); err != nil {
		cobra.CheckErr(err)
	}
	snapshot := cfgManager.Snapshot()

	logging.SetMode(logging.ModeCLI)
	logging.SetDebugEnabled(cfgManager.Viper().GetString("logLevel") == "debug")

	logging.Debug("kls-core: storagePath=%q workspaceRoots=%v", snapshot.StoragePath, snapshot.WorkspaceRoots)
}
