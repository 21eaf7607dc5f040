package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"rmloc/internal/config"
	"rmloc/internal/patcher"
	"rmloc/internal/project"
	"rmloc/internal/sheet"
	"rmloc/internal/store"
	"rmloc/internal/tm"
	"rmloc/internal/walker"
	"rmloc/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the CLI application.
func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	rootCmd := &cobra.Command{
		Use:   "rmloc",
		Short: "Extract and patch translatable strings in RPG Maker game data",
		Long: `rmloc scans a game project's data files for player-visible text, keeps the
strings in a persistent strings file, round-trips them through translator
sheets, and patches approved translations back into the original files
without disturbing command codes, escape sequences, or sibling values.`,
	}

	rootCmd.AddCommand(initCmd(cfg))
	rootCmd.AddCommand(exportCmd(cfg))
	rootCmd.AddCommand(importCmd(cfg))
	rootCmd.AddCommand(patchCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scan a project and create or refresh the strings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, _ := cmd.Flags().GetString("project")
			output, _ := cmd.Flags().GetString("output")
			return runInit(cfg, projectDir, output)
		},
	}
	cmd.Flags().StringP("project", "p", ".", "Path to the game project directory")
	cmd.Flags().StringP("output", "o", cfg.StringsFile, "Strings file to create or refresh")
	return cmd
}

func exportCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [strings-file]",
		Short: "Export strings to a translator sheet (TSV)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stringsFile := cfg.StringsFile
			if len(args) > 0 {
				stringsFile = args[0]
			}
			lang, _ := cmd.Flags().GetString("language")
			output, _ := cmd.Flags().GetString("output")
			return runExport(cfg, stringsFile, output, lang)
		},
	}
	cmd.Flags().StringP("language", "l", "", "Language code to export (e.g. ja, en, fr)")
	cmd.Flags().StringP("output", "o", "", "Output sheet file (default: <strings-file>_<lang>.tsv)")
	cmd.MarkFlagRequired("language")
	return cmd
}

func importCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <sheet.tsv>",
		Short: "Import a translated sheet back into the strings file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stringsFile, _ := cmd.Flags().GetString("strings")
			output, _ := cmd.Flags().GetString("output")
			lang, _ := cmd.Flags().GetString("language")
			return runImport(cfg, args[0], stringsFile, output, lang)
		},
	}
	cmd.Flags().StringP("strings", "s", cfg.StringsFile, "Strings file to update")
	cmd.Flags().StringP("output", "o", "", "Output strings file (default: update in place)")
	cmd.Flags().StringP("language", "l", "", "Language code being imported")
	cmd.MarkFlagRequired("language")
	return cmd
}

func patchCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply translations to the project's data files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, _ := cmd.Flags().GetString("project")
			stringsFile, _ := cmd.Flags().GetString("strings")
			lang, _ := cmd.Flags().GetString("language")
			return runPatch(cfg, projectDir, stringsFile, lang)
		},
	}
	cmd.Flags().StringP("project", "p", ".", "Path to the game project directory")
	cmd.Flags().StringP("strings", "s", cfg.StringsFile, "Strings file to use")
	cmd.Flags().StringP("language", "l", "", "Language code to patch")
	cmd.MarkFlagRequired("language")
	return cmd
}

// setupContext creates a cancellable context with signal handling.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Warn().Msg("Received shutdown signal, cancelling...")
		cancel()
	}()

	return ctx, cancel
}

// fileScan is the per-file extraction result reduced after the fan-out.
type fileScan struct {
	file     project.File
	entries  []walker.Entry
	problems []walker.Problem
}

// runInit handles the `init` command.
func runInit(cfg *config.Config, projectDir, output string) error {
	ctx, cancel := setupContext()
	defer cancel()

	files, err := project.Discover(projectDir)
	if err != nil {
		return fmt.Errorf("discover project files: %w", err)
	}

	// Walk files in parallel; files are independent, so the only shared
	// state is the merge below, which runs single-threaded afterwards.
	pool := worker.NewPool[project.File, fileScan](cfg.WorkerCount,
		func(ctx context.Context, f project.File) (fileScan, error) {
			doc, err := project.LoadDocument(f)
			if err != nil {
				return fileScan{file: f}, err
			}
			entries, problems := walker.Extract(doc, f.Category, f.Rel)
			return fileScan{file: f, entries: entries, problems: problems}, nil
		},
	)

	var fresh []store.Scanned
	failed := 0
	for _, task := range pool.Execute(ctx, files) {
		if task.Err != nil {
			log.Error().Err(task.Err).Str("file", task.Input.Rel).Msg("File skipped")
			failed++
			continue
		}
		for _, p := range task.Result.problems {
			log.Warn().Str("file", task.Input.Rel).Str("path", p.Path).Err(p.Err).Msg("Location skipped")
		}
		for _, e := range task.Result.entries {
			fresh = append(fresh, store.Scanned{
				ID:         e.ID,
				SourceFile: task.Input.Rel,
				Path:       e.Path,
				Text:       e.Text,
				Context:    e.Context,
			})
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st, err := store.LoadOrNew(output)
	if err != nil {
		return fmt.Errorf("load strings file: %w", err)
	}

	report := st.Merge(fresh)

	misc, found, err := project.LoadMisc(projectDir)
	if err != nil {
		log.Warn().Err(err).Msg("Misc strings not loaded")
	} else if found {
		st.MergeMisc(misc)
		log.Info().Int("count", len(misc)).Msg("Merged misc strings")
	}

	if err := st.Save(output); err != nil {
		return fmt.Errorf("save strings file: %w", err)
	}

	for _, id := range report.Stale {
		log.Warn().Str("id", id).Str("path", st.Entries[id].Path).Msg("Entry stale: source text changed, translation kept for re-review")
	}
	for _, id := range report.Orphaned {
		log.Warn().Str("id", id).Str("path", st.Entries[id].Path).Msg("Entry orphaned: no longer extracted, kept for manual cleanup")
	}
	for _, m := range report.Moved {
		log.Info().Str("from", m[0]).Str("to", m[1]).Msg("Entry moved, translation carried over")
	}

	log.Info().
		Int("files", len(files)-failed).
		Int("failed_files", failed).
		Int("added", len(report.Added)).
		Int("unchanged", report.Unchanged).
		Int("stale", len(report.Stale)).
		Int("orphaned", len(report.Orphaned)).
		Int("moved", len(report.Moved)).
		Str("output", output).
		Msg("Extraction complete")

	return nil
}

// runExport handles the `export` command.
func runExport(cfg *config.Config, stringsFile, output, lang string) error {
	ctx, cancel := setupContext()
	defer cancel()

	st, err := store.Load(stringsFile)
	if err != nil {
		return fmt.Errorf("load strings file: %w", err)
	}

	exporter := &sheet.Exporter{Store: st, Lang: lang}

	if cfg.DatabaseURL != "" {
		memory, err := tm.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("Translation memory unavailable, exporting without suggestions")
		} else {
			defer memory.Close()
			if err := memory.EnsureSchema(ctx); err != nil {
				return err
			}
			suggest, err := memory.Preload(ctx, lang)
			if err != nil {
				return err
			}
			exporter.Suggest = suggest
		}
	}

	if output == "" {
		base := strings.TrimSuffix(stringsFile, filepath.Ext(stringsFile))
		output = fmt.Sprintf("%s_%s.tsv", base, lang)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create sheet file: %w", err)
	}
	defer f.Close()

	rows, err := exporter.WriteTSV(f)
	if err != nil {
		return err
	}

	log.Info().Int("rows", rows).Str("lang", lang).Str("output", output).Msg("Export complete")
	return nil
}

// runImport handles the `import` command.
func runImport(cfg *config.Config, sheetFile, stringsFile, output, lang string) error {
	ctx, cancel := setupContext()
	defer cancel()

	st, err := store.Load(stringsFile)
	if err != nil {
		return fmt.Errorf("load strings file: %w", err)
	}

	var record func(original, translated string)
	if cfg.DatabaseURL != "" {
		memory, err := tm.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("Translation memory unavailable, importing without recording")
		} else {
			defer memory.Close()
			if err := memory.EnsureSchema(ctx); err != nil {
				return err
			}
			record = func(original, translated string) {
				if err := memory.Record(ctx, lang, original, translated); err != nil {
					log.Warn().Err(err).Msg("Failed to record translation")
				}
			}
		}
	}

	f, err := os.Open(sheetFile)
	if err != nil {
		return fmt.Errorf("open sheet file: %w", err)
	}
	defer f.Close()

	report, err := sheet.Import(f, st, lang, record)
	if err != nil {
		return fmt.Errorf("import sheet: %w", err)
	}

	if output == "" {
		output = stringsFile
	}
	if err := st.Save(output); err != nil {
		return fmt.Errorf("save strings file: %w", err)
	}

	log.Info().
		Int("applied", report.Applied).
		Int("unknown_ids", report.Unknown).
		Int("empty_rows", report.Empty).
		Str("output", output).
		Msg("Import complete")

	return nil
}

// runPatch handles the `patch` command.
func runPatch(cfg *config.Config, projectDir, stringsFile, lang string) error {
	ctx, cancel := setupContext()
	defer cancel()

	st, err := store.Load(stringsFile)
	if err != nil {
		return fmt.Errorf("load strings file: %w", err)
	}

	if st.LanguageCount(lang) == 0 {
		return fmt.Errorf("no translations for language %q in %s", lang, stringsFile)
	}

	files, err := project.Discover(projectDir)
	if err != nil {
		return fmt.Errorf("discover project files: %w", err)
	}

	report := patcher.New(st, lang).PatchProject(ctx, files, cfg.WorkerCount)

	miscApplied, miscFound, err := project.PatchMisc(projectDir, func(id string) (string, bool) {
		return st.MiscTranslation(id, lang)
	})
	if err != nil {
		log.Error().Err(err).Msg("Misc strings not patched")
	} else if miscFound {
		log.Info().Int("applied", miscApplied).Msg("Misc strings patched")
	}

	conflicts := 0
	for _, fs := range report.Files {
		conflicts += len(fs.Conflicts)
	}

	log.Info().
		Int("files", len(report.Files)).
		Int("failed_files", len(report.Failed())).
		Int("applied", report.Applied()+miscApplied).
		Int("conflicts", conflicts).
		Str("lang", lang).
		Msg("Patch complete")

	// Per-file failures are partial success: everything else was patched
	// and reported above. Only missing inputs are command-level fatal.
	return nil
}
