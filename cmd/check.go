/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/fragtran/internal/mismatch"
	"github.com/valpere/fragtran/internal/session"
	"github.com/valpere/fragtran/internal/validator"
)

var (
	checkSessionPath string
	checkTargetLang  string
	checkLanguage    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report quality problems in a saved translation session",
	Long: `Run the mismatch detector over every translated fragment of a session
and list the ones whose translation drifted from the original's structure.

With --language, additionally verify that each translation is actually
written in the target language.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := session.Load(checkSessionPath)
		if err != nil {
			return err
		}

		translated := 0
		flagged := 0
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FRAGMENT\tLOCATION\tPROBLEMS")

		for _, f := range sess.Paragraphs {
			if !f.Translated {
				continue
			}
			translated++
			if reasons := mismatch.Reasons(mismatch.Check(f)); reasons != "" {
				flagged++
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Location, reasons)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d translated fragments mismatched\n", flagged, translated)

		if checkLanguage {
			if checkTargetLang == "" {
				return fmt.Errorf("--language requires --target")
			}
			v := validator.New()
			issues := v.CheckFragments(sess.Paragraphs, checkTargetLang)
			for _, issue := range issues {
				fmt.Printf("%s: %s\n", issue.Fragment.ID, issue.Reason)
			}
			fmt.Printf("%d fragments failed language validation\n", len(issues))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkSessionPath, "session", "", "Session file to check (required)")
	checkCmd.Flags().StringVarP(&checkTargetLang, "target", "t", "", "Target language code for --language")
	checkCmd.Flags().BoolVar(&checkLanguage, "language", false, "Also verify translations are in the target language")

	checkCmd.MarkFlagRequired("session")
}
