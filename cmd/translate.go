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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/valpere/fragtran/internal/config"
	"github.com/valpere/fragtran/internal/controller"
	"github.com/valpere/fragtran/internal/epubfile"
	"github.com/valpere/fragtran/internal/extract"
	"github.com/valpere/fragtran/internal/fragment"
	"github.com/valpere/fragtran/internal/prompt"
	"github.com/valpere/fragtran/internal/reinsert"
	"github.com/valpere/fragtran/internal/session"
	"github.com/valpere/fragtran/internal/store"
)

var (
	inputFile  string
	outputFile string
	sourceLang string
	targetLang string

	provider string
	model    string

	sessionPath string
	contextSize int
	temperature float64
	maxAttempts int
	noAutoFix   bool
	retranslate bool

	noMemory   bool
	memoryPath string

	customOllamaPrompt string
	customSystemPrompt string
	customUserPrompt   string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate an EPUB or SRT file fragment by fragment",
	Long: `Extract translatable fragments from an EPUB book or SRT subtitle file,
translate them with the configured provider, verify each result against the
original's structure, retry mismatches at a raised temperature, and write the
translated document with its markup intact.

Progress is saved to a session file (--session) so an interrupted run can be
resumed; already-translated fragments are skipped unless --all is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile && outputFile != "" {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		settings, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, settings)

		prompts, err := prompt.ParseSet(settings.CustomOllamaPrompt, settings.CustomSystemPrompt, settings.CustomUserPrompt)
		if err != nil {
			return err
		}

		log := newLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fileType, err := detectFileType(inputFile)
		if err != nil {
			return err
		}

		var book *epubfile.Book
		var fragments []*fragment.Fragment
		switch fileType {
		case session.FileTypeEPUB:
			book, err = epubfile.Open(inputFile)
			if err != nil {
				return fmt.Errorf("failed to open EPUB: %w", err)
			}
			fragments, err = extract.EPUB(book, log)
			if err != nil {
				return fmt.Errorf("failed to extract fragments: %w", err)
			}
		case session.FileTypeSRT:
			data, err := os.ReadFile(inputFile)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			fragments = extract.SRT(inputFile, string(data), log)
		}
		if len(fragments) == 0 {
			return fmt.Errorf("no translatable fragments found in %s", inputFile)
		}

		if sessionPath != "" {
			if _, statErr := os.Stat(sessionPath); statErr == nil {
				sess, err := session.Load(sessionPath)
				if err != nil {
					return err
				}
				remap := sess.Reconcile(fragments, log)
				if book != nil && len(remap) > 0 {
					if err := extract.RemapIDs(book, remap); err != nil {
						return fmt.Errorf("failed to restore fragment ids: %w", err)
					}
				}
			}
		}

		var memory *store.Store
		if !noMemory {
			memory, err = store.New(settings.MemoryPath)
			if err != nil {
				return fmt.Errorf("failed to open translation memory: %w", err)
			}
			defer memory.Close()
		}

		backend, machine, err := buildBackend(settings, log)
		if err != nil {
			return err
		}
		if backend != nil && settings.Model == "" {
			settings.Model = defaultModels[settings.Provider]
		}

		ctrl, err := controller.New(fragments, controller.Config{
			Backend:     backend,
			Machine:     machine,
			Memory:      memory,
			SourceLang:  settings.SourceLang,
			TargetLang:  settings.TargetLang,
			Model:       settings.Model,
			Temperature: settings.Temperature,
			ContextSize: settings.ContextSize,
			MaxAttempts: settings.MaxAttempts,
			Instruction: settings.Instruction(),
			Prompts:     prompts,
			AutoFix:     settings.AutoFix,
			Log:         log,
			OnProgress: func(done, total int) {
				fmt.Fprintf(os.Stderr, "\rTranslating %d/%d", done, total)
				if done == total {
					fmt.Fprintln(os.Stderr)
				}
			},
		})
		if err != nil {
			return err
		}

		indices := selectIndices(fragments, retranslate)
		if len(indices) == 0 {
			fmt.Println("Nothing to translate: all fragments already done.")
			return writeOutput(book, fragments, fileType, log)
		}

		summary, runErr := ctrl.Run(ctx, indices)

		if sessionPath != "" {
			saveErr := session.Save(sessionPath, &session.Session{
				OriginalFilePath:   inputFile,
				FileType:           fileType,
				Paragraphs:         fragments,
				SystemPrompt:       settings.Instruction(),
				ContextSize:        settings.ContextSize,
				Temperature:        settings.Temperature,
				CustomOllamaPrompt: settings.CustomOllamaPrompt,
				CustomSystemPrompt: settings.CustomSystemPrompt,
				CustomUserPrompt:   settings.CustomUserPrompt,
			})
			if saveErr != nil {
				log.WithError(saveErr).Error("failed to save session")
			}
		}
		if runErr != nil {
			return runErr
		}

		if err := writeOutput(book, fragments, fileType, log); err != nil {
			return err
		}

		fmt.Printf("Translated %d/%d fragments (%d failed, %d retry rounds)\n",
			summary.Translated, summary.Total, summary.Failed, summary.Rounds)
		if len(summary.Mismatched) > 0 {
			keys := make([]int, 0, len(summary.Mismatched))
			for i := range summary.Mismatched {
				keys = append(keys, i)
			}
			sort.Ints(keys)
			fmt.Printf("%d fragments still mismatched:\n", len(keys))
			for _, i := range keys {
				fmt.Printf("  %s: %s\n", fragments[i].ID, summary.Mismatched[i])
			}
		}
		return nil
	},
}

// applyFlagOverrides copies explicitly-set flags over the loaded settings.
func applyFlagOverrides(cmd *cobra.Command, s *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		s.SourceLang = sourceLang
	}
	if flags.Changed("target") {
		s.TargetLang = targetLang
	}
	if flags.Changed("provider") {
		s.Provider = provider
	}
	if flags.Changed("model") {
		s.Model = model
	}
	if flags.Changed("context-size") {
		s.ContextSize = contextSize
	}
	if flags.Changed("temperature") {
		s.Temperature = temperature
	}
	if flags.Changed("max-attempts") {
		s.MaxAttempts = maxAttempts
	}
	if flags.Changed("no-auto-fix") {
		s.AutoFix = !noAutoFix
	}
	if flags.Changed("memory") {
		s.MemoryPath = memoryPath
	}
	if flags.Changed("ollama-prompt") {
		s.CustomOllamaPrompt = customOllamaPrompt
	}
	if flags.Changed("system-prompt") {
		s.CustomSystemPrompt = customSystemPrompt
	}
	if flags.Changed("user-prompt") {
		s.CustomUserPrompt = customUserPrompt
	}
}

// selectIndices picks the fragments to run: everything with --all, otherwise
// only fragments without a successful translation.
func selectIndices(fragments []*fragment.Fragment, all bool) []int {
	var indices []int
	for i, f := range fragments {
		if all || !f.Translated {
			indices = append(indices, i)
		}
	}
	return indices
}

// writeOutput reinserts translations and writes the output file, when one was
// requested.
func writeOutput(book *epubfile.Book, fragments []*fragment.Fragment, fileType string, log *logrus.Logger) error {
	if outputFile == "" {
		return nil
	}
	switch fileType {
	case session.FileTypeEPUB:
		if err := reinsert.EPUB(book, fragments, reinsert.DefaultOptions(), log); err != nil {
			return err
		}
		if err := book.WriteFile(outputFile); err != nil {
			return fmt.Errorf("failed to write EPUB: %w", err)
		}
	case session.FileTypeSRT:
		out, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()
		if err := reinsert.SRT(out, fragments); err != nil {
			return err
		}
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file, .epub or .srt (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file for the translated document")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code")

	translateCmd.Flags().StringVarP(&provider, "provider", "p", "ollama", "Translation provider: ollama, lmstudio, openrouter, deepl, google")
	translateCmd.Flags().StringVarP(&model, "model", "m", "", "Model name for LLM providers")

	translateCmd.Flags().StringVar(&sessionPath, "session", "", "Session file to resume from and save progress to")
	translateCmd.Flags().IntVar(&contextSize, "context-size", 5, "Number of preceding fragments sent as context")
	translateCmd.Flags().Float64Var(&temperature, "temperature", 0.3, "Sampling temperature for LLM providers")
	translateCmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "Total attempts per fragment including the first")
	translateCmd.Flags().BoolVar(&noAutoFix, "no-auto-fix", false, "Disable automatic retry of mismatched translations")
	translateCmd.Flags().BoolVar(&retranslate, "all", false, "Retranslate fragments that already have a translation")

	translateCmd.Flags().BoolVar(&noMemory, "no-memory", false, "Disable the translation memory")
	translateCmd.Flags().StringVar(&memoryPath, "memory", "fragtran_memory.db", "Translation memory database path")

	translateCmd.Flags().StringVar(&customOllamaPrompt, "ollama-prompt", "", "Custom single prompt template ({context} and {core_text} required)")
	translateCmd.Flags().StringVar(&customSystemPrompt, "system-prompt", "", "Custom system prompt template ({context} required)")
	translateCmd.Flags().StringVar(&customUserPrompt, "user-prompt", "", "Custom user prompt template ({core_text} required)")

	translateCmd.MarkFlagRequired("input")
}
