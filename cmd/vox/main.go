package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voxcollect/internal/app"
	"voxcollect/internal/config"
	"voxcollect/internal/db"
	"voxcollect/internal/domain"
	"voxcollect/internal/engine"
	"voxcollect/internal/repo"
	"voxcollect/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vox",
	Short: "VoxCollect CLI",
	Long: `VoxCollect collects speech and translation data through tasks.
- Workspace: the .voxcollect directory holding the database and local blobs.
- Project: owns tasks, members and per-project config (voxcollect.yml, imported into the DB).
- Tasks: recording, transcription, translation or validation prompts; statuses go
  draft -> open -> in_progress -> completed -> verified (rejected/archived are exits).
- Contributions: one submission per user per task; approving a recording spawns
  its transcription task automatically.
- Event log: diary of changes, view with 'vox log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	// Commands pick this context up via cmd.Context(); interrupting the
	// process cancels the serve loop and any background tickers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "user identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(contributeCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, desc, srcLang, tgtLang string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.Engine.CreateProject(ctx, engine.CreateProjectOptions{
					ID:             id,
					Name:           args[0],
					Description:    desc,
					SourceLanguage: srcLang,
					TargetLanguage: tgtLang,
					ActorID:        viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&srcLang, "source-language", "", "source language code")
	cmd.Flags().StringVar(&tgtLang, "target-language", "", "target language code")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Source", "Target"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.SourceLanguage, p.TargetLanguage})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.Engine.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [id]",
		Short: "Project status with task counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				id := resolveProjectID(a, args)
				if id == "" {
					return fmt.Errorf("project id required (argument, --project, or voxcollect.yml)")
				}
				p, err := a.Engine.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				counts, err := a.Engine.Repo.CountTasksByStatus(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"project_id":  p.ID,
					"name":        p.Name,
					"status":      p.Status,
					"task_counts": counts,
				})
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Cascade-delete a project and everything under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete without --yes")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Engine.SafelyDeleteProject(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage project config"}
	cfg.AddCommand(projectConfigImportCmd())
	cfg.AddCommand(projectConfigExportCmd())
	return cfg
}

func projectConfigImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import <project-id>",
		Short: "Import voxcollect.yml into the project config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = config.Path(viper.GetString("workspace"))
			}
			c, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Engine.Repo.UpsertProjectConfig(ctx, args[0], c); err != nil {
					return err
				}
				fmt.Printf("imported %s into project %s\n", file, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file (defaults to <workspace>/voxcollect.yml)")
	return cmd
}

func projectConfigExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export the project config as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.Repo.GetProjectConfig(ctx, args[0])
				if err != nil {
					return err
				}
				data, err := c.ToYAML()
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Print(string(data))
					return nil
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to file instead of stdout")
	return cmd
}

// --- members ---

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage project members"}
	mem.AddCommand(memberAddCmd())
	mem.AddCommand(memberListCmd())
	mem.AddCommand(memberRemoveCmd())
	return mem
}

func memberAddCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "add <project-id> <user-id>",
		Short: "Add or update a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				m, err := a.Engine.AddMember(ctx, args[0], viper.GetString("user-id"), args[1], role)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", domain.RoleContributor, "owner|admin|manager|reviewer|contributor|validator")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				ms, err := a.Engine.Repo.ListMembers(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ms)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Role", "Added"})
				for _, m := range ms {
					tw.AppendRow(table.Row{m.UserID, m.Role, m.AddedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <project-id> <user-id>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Engine.RemoveMember(ctx, args[0], viper.GetString("user-id"), args[1])
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	tsk.AddCommand(taskCreateCmd())
	tsk.AddCommand(taskListCmd())
	tsk.AddCommand(taskShowCmd())
	tsk.AddCommand(taskTransitionCmd())
	tsk.AddCommand(taskHistoryCmd())
	tsk.AddCommand(taskIntegrityCmd())
	return tsk
}

func taskCreateCmd() *cobra.Command {
	var taskType, prompt, metadata string
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				projectID := resolveProjectID(a, nil)
				if projectID == "" {
					return fmt.Errorf("project id required (--project or voxcollect.yml)")
				}
				opts := engine.CreateTaskOptions{
					ProjectID:  projectID,
					Type:       taskType,
					PromptText: prompt,
					Metadata:   optionalString(metadata),
					ActorID:    viper.GetString("user-id"),
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				t, err := a.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&taskType, "type", "", "asr|tts|transcription|translation|validation")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	cmd.Flags().StringVar(&metadata, "metadata-json", "", "metadata JSON")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (defaults from config)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, taskType, assignedTo string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				ts, err := a.Engine.Repo.ListTasks(ctx, repo.TaskFilters{
					ProjectID:  resolveProjectID(a, nil),
					Status:     status,
					Type:       taskType,
					AssignedTo: assignedTo,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Assignee", "Priority", "Prompt"})
				for _, t := range ts {
					assignee := ""
					if t.AssignedTo != nil {
						assignee = *t.AssignedTo
					}
					prompt := t.PromptText
					if len(prompt) > 40 {
						prompt = prompt[:37] + "..."
					}
					tw.AppendRow(table.Row{t.ID, t.Type, t.Status, assignee, t.Priority, prompt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&taskType, "type", "", "type filter")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				t, err := a.Engine.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskTransitionCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Change task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				t, err := a.Engine.TransitionTask(ctx, args[0], args[1], viper.GetString("user-id"), note)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "history note")
	return cmd
}

func taskHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show task status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				hs, err := a.Engine.Repo.ListStatusHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(hs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func taskIntegrityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrity <id>",
		Short: "Check and repair a task against its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep, err := a.Engine.EnsureIntegrity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

// --- contributions ---

func contributeCmd() *cobra.Command {
	con := &cobra.Command{Use: "contribute", Short: "Submit contributions"}
	con.AddCommand(contributeRecordCmd())
	con.AddCommand(contributeTextCmd())
	con.AddCommand(contributeCheckCmd())
	return con
}

func contributeRecordCmd() *cobra.Command {
	var file, contentType string
	cmd := &cobra.Command{
		Use:   "record <task-id>",
		Short: "Submit an audio recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if contentType == "" {
				contentType = contentTypeForFile(file)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.SubmitContribution(ctx, engine.SubmitOptions{
					TaskID:      args[0],
					UserID:      viper.GetString("user-id"),
					Audio:       audio,
					ContentType: contentType,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "audio file")
	cmd.Flags().StringVar(&contentType, "content-type", "", "audio content type (inferred from extension when empty)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func contributeTextCmd() *cobra.Command {
	var transcription, translation string
	cmd := &cobra.Command{
		Use:   "text <task-id>",
		Short: "Submit a transcription or translation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcription == "" && translation == "" {
				return fmt.Errorf("--transcription or --translation required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.SubmitContribution(ctx, engine.SubmitOptions{
					TaskID:            args[0],
					UserID:            viper.GetString("user-id"),
					TranscriptionText: optionalString(transcription),
					TranslationText:   optionalString(translation),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&transcription, "transcription", "", "transcription text")
	cmd.Flags().StringVar(&translation, "translation", "", "translation text")
	return cmd
}

func contributeCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <task-id>",
		Short: "Check whether you may contribute to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				reason, err := a.Engine.CanContribute(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"can_contribute": reason == "",
					"reason":         reason,
				})
			})
		},
	}
}

// --- reviews ---

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{Use: "review", Short: "Review contributions"}
	rev.AddCommand(reviewApproveCmd())
	rev.AddCommand(reviewRejectCmd())
	rev.AddCommand(reviewBatchCmd())
	return rev
}

func reviewApproveCmd() *cobra.Command {
	var comment string
	var rating int
	cmd := &cobra.Command{
		Use:   "approve <contribution-id>",
		Short: "Approve a contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				var r *int
				if cmd.Flags().Changed("rating") {
					r = &rating
				}
				c, err := a.Engine.ApproveContribution(ctx, args[0], viper.GetString("user-id"), r, comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	return cmd
}

func reviewRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <contribution-id>",
		Short: "Reject a contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.RejectContribution(ctx, args[0], viper.GetString("user-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func reviewBatchCmd() *cobra.Command {
	var decisionsJSON string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply several review decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var decisions []engine.ReviewDecision
			if err := json.Unmarshal([]byte(decisionsJSON), &decisions); err != nil {
				return fmt.Errorf("parse --decisions-json: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res := a.Engine.BatchReview(ctx, viper.GetString("user-id"), decisions)
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&decisionsJSON, "decisions-json", "", `decisions, e.g. [{"contribution_id":"...","approve":true}]`)
	_ = cmd.MarkFlagRequired("decisions-json")
	return cmd
}

// --- admin ---

func adminCmd() *cobra.Command {
	adm := &cobra.Command{Use: "admin", Short: "Maintenance commands"}
	adm.AddCommand(adminIntegrityCmd())
	adm.AddCommand(adminPruneSessionsCmd())
	return adm
}

func adminIntegrityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrity <project-id>",
		Short: "Check and repair every task in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				reps, err := a.Engine.CheckProjectIntegrity(ctx, args[0])
				if err != nil {
					return err
				}
				if len(reps) == 0 {
					fmt.Println("no drift found")
					return nil
				}
				return printJSONOrTable(reps)
			})
		},
	}
}

func adminPruneSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-sessions",
		Short: "Prune expired upload sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				n, err := a.Engine.PruneUploadSessions(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("pruned %d sessions\n", n)
				return nil
			})
		},
	}
}

// --- log ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, resolveProjectID(a, nil), evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var pruneEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				authCfg := server.AuthConfig{
					JWTSecret:             os.Getenv("VOX_JWT_SECRET"),
					AllowLegacyUserHeader: os.Getenv("VOX_ALLOW_LEGACY_USER_HEADER") == "1",
					Logger:                a.Logger,
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyUserHeader {
					return fmt.Errorf("VOX_JWT_SECRET is required for bearer auth (or set VOX_ALLOW_LEGACY_USER_HEADER=1)")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				a.Engine.StartSessionPruner(ctx, pruneEvery)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving VoxCollect API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().DurationVar(&pruneEvery, "prune-interval", time.Hour, "upload session prune interval")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func resolveProjectID(a *app.Context, args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	if p := viper.GetString("project"); p != "" {
		return p
	}
	if a.Cfg != nil {
		return a.Cfg.Project.ID
	}
	return ""
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func contentTypeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	}
	return "application/octet-stream"
}
