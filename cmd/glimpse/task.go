package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/glimmerhq/glimpse/internal/auth"
	"github.com/glimmerhq/glimpse/internal/config"
	"github.com/glimmerhq/glimpse/internal/data"
	"github.com/glimmerhq/glimpse/internal/importer"
	"github.com/glimmerhq/glimpse/internal/localstore"
	"github.com/glimmerhq/glimpse/internal/remote"
	"github.com/glimmerhq/glimpse/internal/task"
	"github.com/glimmerhq/glimpse/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Manage tasks",
	Long: `Manage tasks from the terminal.

Without a session, tasks live in the local store (~/.glimpse/tasks.db).
After 'glimpse login' the same commands operate on your account through
the server.`,
}

// dateParser understands natural-language due dates ("tomorrow 5pm",
// "next friday").
var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// openBackend builds the data façade for the current auth state. The
// returned cleanup closes the guest store if one was opened.
func openBackend(cfg *config.Config) (*data.Facade, func(), error) {
	session, err := auth.LoadSession(cfg.Auth.SessionFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.Valid() {
		client := remote.NewClient(cfg.Auth.APIBase, session.Token)
		backend := data.NewRemoteBackend(client)
		return data.New(nil, backend, func() bool { return true }), func() {}, nil
	}

	store, err := localstore.Open(config.LocalDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local store: %w", err)
	}
	backend := data.NewLocalBackend(store)
	cleanup := func() { _ = store.Close() }
	return data.New(backend, nil, func() bool { return false }), cleanup, nil
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	// Exact timestamps first, then natural language.
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return &ts, nil
	}

	r, err := dateParser.Parse(s, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return nil, fmt.Errorf("could not understand due date %q", s)
	}
	return &r.Time, nil
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task",
	Long: `Add a task. With a title argument the task is created directly; without
one an interactive form opens.

The --due flag accepts natural language ("tomorrow 5pm", "next friday")
as well as RFC 3339 timestamps and YYYY-MM-DD dates.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		title := ""
		if len(args) > 0 {
			title = args[0]
		}
		description, _ := cmd.Flags().GetString("desc")
		priority, _ := cmd.Flags().GetString("priority")
		dueText, _ := cmd.Flags().GetString("due")
		color, _ := cmd.Flags().GetString("color")

		if title == "" {
			if err := runAddForm(&title, &description, &priority, &dueText); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		due, err := parseDue(dueText)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		t := &task.Task{
			Title:       title,
			Description: description,
			Priority:    task.Priority(priority),
			DueDate:     due,
			Color:       color,
		}
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		created, err := facade.Create(context.Background(), t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), ui.RenderBold(created.Title))
		if created.DueDate != nil {
			fmt.Printf("   Due: %s\n", created.DueDate.Format("Mon Jan 2 15:04"))
		}
	},
}

func runAddForm(title, description, priority, dueText *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(huh.NewOptions("low", "medium", "high")...).
				Value(priority),
			huh.NewInput().
				Title("Due").
				Description("e.g. tomorrow 5pm, next friday, 2026-01-15").
				Value(dueText),
		),
	)
	return form.Run()
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List this week's tasks",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		start, end := weekBounds(time.Now())
		tasks, err := facade.WeekTasks(context.Background(), start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
			os.Exit(1)
		}

		if len(tasks) == 0 {
			fmt.Printf("%s No tasks this week\n", ui.RenderDim("∅"))
			return
		}

		for _, t := range tasks {
			printTask(t)
		}
	},
}

// weekBounds returns the Monday 00:00 and following Monday for t's week.
func weekBounds(t time.Time) (time.Time, time.Time) {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).
		AddDate(0, 0, 1-weekday)
	return start, start.AddDate(0, 0, 7)
}

func printTask(t *task.Task) {
	mark := ui.RenderDim("○")
	if t.Completed {
		mark = ui.RenderPass("✓")
	}

	ref := t.ID
	if ref == "" {
		ref = strconv.FormatInt(t.LocalID, 10)
	}

	line := fmt.Sprintf("%s [%s] %s (%s)", mark, ui.RenderDim(ref), t.Title, ui.RenderPriority(string(t.Priority)))
	if t.DueDate != nil {
		line += " " + ui.RenderAccent(t.DueDate.Format("Mon 15:04"))
	}
	fmt.Println(line)
}

// findTask resolves a task reference: the local row id in guest mode, the
// server id (or unique prefix) when logged in, or an exact title either way.
func findTask(ctx context.Context, facade *data.Facade, ref string) (*task.Task, error) {
	start, end := weekBounds(time.Now())
	tasks, err := facade.WeekTasks(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	if localID, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, t := range tasks {
			if t.LocalID == localID && t.ID == "" {
				return t, nil
			}
		}
	}

	var prefixed *task.Task
	for _, t := range tasks {
		if t.ID != "" && t.ID == ref {
			return t, nil
		}
		if t.ID != "" && strings.HasPrefix(t.ID, ref) {
			if prefixed != nil {
				return nil, fmt.Errorf("ambiguous task reference %q", ref)
			}
			prefixed = t
		}
	}
	if prefixed != nil {
		return prefixed, nil
	}

	for _, t := range tasks {
		if t.Title == ref {
			return t, nil
		}
	}

	return nil, fmt.Errorf("no task matches %q", ref)
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		ctx := context.Background()
		t, err := findTask(ctx, facade, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		t.Completed = true
		if _, err := facade.Update(ctx, t); err != nil {
			fmt.Fprintf(os.Stderr, "Error updating task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Completed %s\n", ui.RenderPass("✓"), ui.RenderBold(t.Title))
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <task>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		ctx := context.Background()
		t, err := findTask(ctx, facade, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := facade.Delete(ctx, t); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), ui.RenderBold(t.Title))
	},
}

var taskImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tasks from a JSON file",
	Long: `Import tasks from a JSON file. The file holds an array of tasks and may
use relaxed JSON (comments and trailing commas).

Invalid entries are reported and skipped; the rest are imported.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		logger := log.New(os.Stderr, "[import] ", 0)
		imported, err := importer.ImportFile(context.Background(), facade, args[0], logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Imported %d task(s)\n", ui.RenderPass("✓"), imported)
	},
}

var taskWatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory and import dropped task files",
	Long: `Watch a directory and import any JSON task file written into it.

Files already present when the watch starts are imported once up front.
Duplicates (same title and due date) are skipped, so dropping a file twice
is harmless. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		logger := log.New(os.Stderr, "[watch] ", log.LstdFlags)
		ctx := context.Background()

		// Catch up on files dropped before the watch started.
		entries, err := os.ReadDir(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(args[0], entry.Name())
			if n, err := importer.ImportFile(ctx, facade, path, logger); err != nil {
				logger.Printf("Failed to import %s: %v", path, err)
			} else if n > 0 {
				logger.Printf("Imported %d task(s) from %s", n, path)
			}
		}

		w, err := importer.NewWatcher(facade, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := w.Start(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %s (Ctrl-C to stop)\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		if err := w.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping watcher: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	taskAddCmd.Flags().String("desc", "", "Task description")
	taskAddCmd.Flags().String("priority", "", "Priority: low, medium, or high")
	taskAddCmd.Flags().String("due", "", "Due date (natural language or timestamp)")
	taskAddCmd.Flags().String("color", "", "Display color (#RRGGBB)")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskRmCmd)
	taskCmd.AddCommand(taskImportCmd)
	taskCmd.AddCommand(taskWatchCmd)
	rootCmd.AddCommand(taskCmd)
}
