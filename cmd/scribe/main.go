// cmd/scribe/main.go
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"scribe/internal/app"
	"scribe/internal/command"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe saves notes and keeps their history",
	Long: `Scribe tracks the text files of a workspace, saves new content for them
atomically, keeps every previous revision and counts the words you write.`,
	SilenceUsage: true,
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new Scribe workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			if err := workspace.Initialize(dir); err != nil {
				return fmt.Errorf("initializing workspace: %w", err)
			}
			if err := config.Default().Save(config.Path(dir)); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			fmt.Println("Initialized empty Scribe workspace in", dir)
			return nil
		},
	}

	var trackCmd = &cobra.Command{
		Use:   "track [paths...]",
		Short: "Start tracking files",
		Long:  `Adds files to the workspace index. Directories are walked. Use '.' to track everything.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Workspace.Track(args...); err != nil {
				return fmt.Errorf("tracking files: %w", err)
			}

			fmt.Printf("Tracking %d files\n", len(a.Workspace.Files()))
			return nil
		},
	}

	var untrackCmd = &cobra.Command{
		Use:   "untrack [paths...]",
		Short: "Stop tracking files",
		Long:  `Removes files from the workspace index. The files themselves are left alone.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Workspace.Untrack(args...); err != nil {
				return fmt.Errorf("untracking files: %w", err)
			}

			fmt.Println("Files untracked successfully")
			return nil
		},
	}

	var filesCmd = &cobra.Command{
		Use:   "files",
		Short: "List tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			files := a.Workspace.Files()
			if len(files) == 0 {
				fmt.Println("No files tracked")
				return nil
			}

			for _, f := range files {
				fmt.Printf("%s  %s  r%d  %8d  %s\n",
					f.Hash[:8],
					f.ModTime.Format(time.RFC3339),
					f.Revision,
					f.Size,
					f.Path,
				)
			}
			return nil
		},
	}

	var saveCmd = &cobra.Command{
		Use:   "save <path>",
		Short: "Save new content for a tracked file",
		Long: `Replaces the content of a tracked file with the content of --from, or stdin
when --from is not given. The word count change is computed unless --offset is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")

			contents, err := readContents(cmd.InOrStdin(), from)
			if err != nil {
				return err
			}

			var offset *int
			if cmd.Flags().Changed("offset") {
				n, _ := cmd.Flags().GetInt("offset")
				offset = &n
			}

			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			return printResult(a.SaveText(cmd.Context(), args[0], contents, offset))
		},
	}

	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show word count statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Stats.Summary()
			if err != nil {
				return fmt.Errorf("reading statistics: %w", err)
			}

			bold := color.New(color.Bold).SprintFunc()
			fmt.Printf("Today:           %s words\n", bold(s.Today))
			fmt.Printf("Last 30 days:    %d words\n", s.SumMonth)
			fmt.Printf("Daily average:   %d words\n", s.AvgMonth)
			return nil
		},
	}

	var historyCmd = &cobra.Command{
		Use:   "history <path>",
		Short: "List the kept revisions of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			revs, err := a.Workspace.History(args[0])
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			if len(revs) == 0 {
				fmt.Println("No revisions kept")
				return nil
			}

			for _, r := range revs {
				stored := "-"
				if meta, err := a.Workspace.ContentSafe.Meta(r.Hash); err == nil {
					stored = fmt.Sprintf("%d", meta.StoredSize)
					if meta.Compressed {
						stored += " zstd"
					}
				}
				fmt.Printf("r%-4d  %s  %s  %8d  %s\n",
					r.Revision,
					r.SavedAt.Format(time.RFC3339),
					r.Hash[:8],
					r.Size,
					stored,
				)
			}
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff <path>",
		Short: "Show changes since a kept revision",
		Long:  `Compares a kept revision of a file with its current content. Defaults to the latest revision.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, _ := cmd.Flags().GetInt("rev")

			a, _, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.DiffRevision(args[0], rev)
			if err != nil {
				return err
			}

			if result.Empty() {
				fmt.Println("No changes")
				return nil
			}

			path := workspace.Normalize(args[0])
			fmt.Printf("diff --scribe a/%s b/%s\n", path, path)
			printColoredDiff(result.Format())
			return nil
		},
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the command API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Workspace.Scan(); err != nil {
				return fmt.Errorf("scanning workspace: %w", err)
			}

			addr, _ := cmd.Flags().GetString("addr")
			logger.Info("starting server", zap.String("address", addr), zap.String("root", a.Root))
			return http.ListenAndServe(addr, a.Handler(logger))
		},
	}

	saveCmd.Flags().StringP("from", "f", "", "Read the new content from this file instead of stdin")
	saveCmd.Flags().IntP("offset", "o", 0, "Word count change to record")

	diffCmd.Flags().IntP("rev", "r", -1, "Revision to compare against")

	serveCmd.Flags().String("addr", "", "Listen address (defaults to the configured host and port)")
	serveCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			return nil
		}
		root, err := findRoot()
		if err != nil {
			return err
		}
		cfg, err := config.LoadWorkspace(root)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return cmd.Flags().Set("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(serveCmd)
}

func findRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	root, err := workspace.FindRoot(cwd)
	if err != nil {
		return "", fmt.Errorf("%w (run 'scribe init')", err)
	}
	return root, nil
}

func openApp() (*app.App, *logging.Logger, error) {
	root, err := findRoot()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.LoadWorkspace(root)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewDevelopment(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	a, err := app.Open(cfg, logger.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening workspace: %w", err)
	}
	return a, logger, nil
}

func readContents(stdin io.Reader, from string) (string, error) {
	if from == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(from)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", from, err)
	}
	return string(data), nil
}

func printResult(res command.Result) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	switch res.Status {
	case command.StatusSaved:
		fmt.Printf("%s %s\n", green("saved"), res.File)
		return nil
	case command.StatusRejected:
		fmt.Printf("%s nothing to save\n", yellow("rejected"))
	default:
		fmt.Printf("%s %s\n", red(res.Status.String()), res.File)
	}
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("save %s", res.Status)
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
