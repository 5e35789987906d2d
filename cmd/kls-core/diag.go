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
	"fmt"

	"github.com/spf13/cobra"

	"kotlinlsp.dev/core/database"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Report on the health of the symbol store",
	Long: `diag checks that the symbol database opens and migrates cleanly,
then reports schema version, storage mode, and indexed symbol/jar counts.`,
	RunE: runDiag,
}

func init() {
	rootCmd.AddCommand(diagCmd)
}

func runDiag(cmd *cobra.Command, args []string) error {
	fmt.Printf("🩺 %s\n\n", Bold("Checking kls-core storage health..."))

	snapshot := cfgManager.Snapshot()

	db, err := database.Open(snapshot.StoragePath)
	if err != nil {
		fmt.Printf("❌ %s: %v\n", Error("Database"), err)
		return nil
	}
	defer db.Close()

	fmt.Printf("✅ %s: accessible\n", Success("Database"))

	if db.InMemory() {
		fmt.Printf("   %s: %s\n", Keyword("mode"), Warning("in-memory (no persistence)"))
	} else {
		fmt.Printf("   %s: %s\n", Keyword("mode"), Success("persistent"))
		fmt.Printf("   %s: %s\n", Keyword("path"), Path(db.Path()))
	}
	fmt.Printf("   %s: %s\n", Keyword("schema version"), Info(database.DBVersion))

	var symbolCount, jarCount int
	if err := db.DB().QueryRow(`SELECT COUNT(*) FROM symbols`).Scan(&symbolCount); err != nil {
		fmt.Printf("❌ %s: %v\n", Error("Symbol count"), err)
		return nil
	}
	if err := db.DB().QueryRow(`SELECT COUNT(*) FROM indexed_jars`).Scan(&jarCount); err != nil {
		fmt.Printf("❌ %s: %v\n", Error("Indexed jar count"), err)
		return nil
	}

	fmt.Println()
	fmt.Printf("📊 %s\n", Bold("Statistics:"))
	fmt.Printf("   Symbols:      %s\n", Info(symbolCount))
	fmt.Printf("   Indexed jars: %s\n", Info(jarCount))

	fmt.Println()
	fmt.Printf("🗂  %s\n", Bold("Workspace roots:"))
	if len(snapshot.WorkspaceRoots) == 0 {
		fmt.Printf("   %s\n", Dim("(none configured)"))
	}
	for _, root := range snapshot.WorkspaceRoots {
		fmt.Printf("   %s\n", Type(root))
	}

	return nil
}
