package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"syncline/internal/audit"
	"syncline/internal/config"
	"syncline/internal/db"
	"syncline/internal/domain"
	"syncline/internal/halo"
	"syncline/internal/migrate"
	"syncline/internal/repo"
	"syncline/internal/server"
	syncer "syncline/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Syncline CLI",
	Long: `Syncline keeps local projects and tasks in step with a HaloPSA instance.
Projects link 1:1 to tickets; tasks ride along as hidden notes. Every sync
attempt lands in an append-only audit log.
Credentials come from the environment (SYNCLINE_HALO_CLIENT_ID,
SYNCLINE_HALO_CLIENT_SECRET, SYNCLINE_HALO_TENANT); base URLs live in the
integration settings (sl integration set).`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SYNCLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(customerCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc, status, customerID string
	var progress int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				p := domain.Project{
					ID:          id,
					Name:        name,
					Description: desc,
					Status:      status,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if p.ID == "" {
					p.ID = uuid.New().String()
				}
				if customerID != "" {
					p.CustomerID = &customerID
				}
				if cmd.Flags().Changed("progress") {
					p.Progress = &progress
				}
				if err := r.InsertProject(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (optional, UUID if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "planning", "status (planning, in_progress, on_hold, completed)")
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Ticket", "Customer"})
				for _, p := range items {
					ticket := ""
					if p.HaloTicketID != nil {
						ticket = *p.HaloTicketID
					}
					customer := ""
					if p.CustomerID != nil {
						customer = *p.CustomerID
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, ticket, customer})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.CustomerID, "customer", "", "customer filter")
	cmd.Flags().BoolVar(&f.LinkedOnly, "linked", false, "only projects linked to a ticket")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, desc, status string
	var progress int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				update := repo.ProjectUpdate{UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
				if cmd.Flags().Changed("name") {
					update.Name = &name
				}
				if cmd.Flags().Changed("description") {
					update.Description = &desc
				}
				if cmd.Flags().Changed("status") {
					update.Status = &status
				}
				if cmd.Flags().Changed("progress") {
					update.Progress = &progress
				}
				if err := r.UpdateProject(ctx, args[0], update); err != nil {
					return err
				}
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteProject(ctx, args[0])
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var id, projectID, title, desc, status, assigned string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetProject(ctx, projectID); err != nil {
					return err
				}
				now := time.Now().UTC().Format(time.RFC3339)
				t := domain.Task{
					ID:           id,
					ProjectID:    projectID,
					Title:        title,
					Description:  desc,
					Status:       status,
					AssignedName: assigned,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if t.ID == "" {
					t.ID = uuid.New().String()
				}
				if err := r.InsertTask(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "open", "status")
	cmd.Flags().StringVar(&assigned, "assigned", "", "assignee name")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Title", "Status", "Assigned"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.ProjectID, t.Title, t.Status, t.AssignedName})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, status, assigned string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				update := repo.TaskUpdate{UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
				if cmd.Flags().Changed("title") {
					update.Title = &title
				}
				if cmd.Flags().Changed("description") {
					update.Description = &desc
				}
				if cmd.Flags().Changed("status") {
					update.Status = &status
				}
				if cmd.Flags().Changed("assigned") {
					update.AssignedName = &assigned
				}
				if err := r.UpdateTask(ctx, args[0], update); err != nil {
					return err
				}
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&assigned, "assigned", "", "assignee name")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTask(ctx, args[0])
			})
		},
	}
	return cmd
}

func customerCmd() *cobra.Command {
	c := &cobra.Command{Use: "customer", Short: "Manage customers"}
	c.AddCommand(customerCreateCmd())
	c.AddCommand(customerShowCmd())
	c.AddCommand(customerMapCmd())
	return c
}

func customerCreateCmd() *cobra.Command {
	var id, name, haloClientID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c := domain.Customer{
					ID:        id,
					Name:      name,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if c.ID == "" {
					c.ID = uuid.New().String()
				}
				if haloClientID != "" {
					c.HaloClientID = &haloClientID
				}
				if err := r.InsertCustomer(ctx, c); err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "customer id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&haloClientID, "halo-client", "", "HaloPSA client id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func customerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetCustomer(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func customerMapCmd() *cobra.Command {
	var haloClientID string
	cmd := &cobra.Command{
		Use:   "map <id>",
		Short: "Map customer to a HaloPSA client id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.SetCustomerHaloClientID(ctx, args[0], haloClientID); err != nil {
					return err
				}
				c, err := r.GetCustomer(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&haloClientID, "halo-client", "", "HaloPSA client id")
	_ = cmd.MarkFlagRequired("halo-client")
	return cmd
}

func syncCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with HaloPSA",
		Long:  "Each subcommand is one synchronous attempt; nothing is retried. Failures and successes alike land in the audit log (sl audit tail).",
	}
	s.AddCommand(syncPushProjectCmd())
	s.AddCommand(syncPushTaskCmd())
	s.AddCommand(syncPullTicketCmd())
	s.AddCommand(syncFullCmd())
	s.AddCommand(syncCreateTicketCmd())
	s.AddCommand(syncLinkCmd())
	s.AddCommand(syncUnlinkCmd())
	s.AddCommand(syncAddNoteCmd())
	s.AddCommand(syncUpdateTicketCmd())
	s.AddCommand(syncGetTicketCmd())
	return s
}

func syncPushProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push-project <project-id>",
		Short: "Push project fields to its linked ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				if err := s.PushProjectUpdate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("project pushed")
				return nil
			})
		},
	}
	return cmd
}

func syncPushTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push-task <task-id>",
		Short: "Post task as a hidden note on the parent ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				if err := s.PushTaskUpdate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("task note posted")
				return nil
			})
		},
	}
	return cmd
}

func syncPullTicketCmd() *cobra.Command {
	var ticketID int
	cmd := &cobra.Command{
		Use:   "pull-ticket",
		Short: "Pull ticket fields into the linked project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				p, err := s.PullTicketUpdate(ctx, ticketID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().IntVar(&ticketID, "ticket", 0, "ticket id")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func syncFullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "full <project-id>",
		Short: "Fetch the linked ticket and its actions (read-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				res, err := s.FullSync(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func syncCreateTicketCmd() *cobra.Command {
	var in syncer.CreateTicketInput
	cmd := &cobra.Command{
		Use:   "create-ticket",
		Short: "Create a ticket and optionally link a project to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				ticket, err := s.CreateTicket(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(ticket)
			})
		},
	}
	cmd.Flags().StringVar(&in.ProjectID, "project", "", "project id to link")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "ticket summary")
	cmd.Flags().StringVar(&in.Details, "details", "", "ticket details")
	cmd.Flags().IntVar(&in.ClientID, "client-id", 0, "explicit HaloPSA client id")
	cmd.Flags().StringVar(&in.ClientName, "client-name", "", "client name for resolution")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}

func syncLinkCmd() *cobra.Command {
	var ticketID int
	cmd := &cobra.Command{
		Use:   "link <project-id>",
		Short: "Link a project to an existing ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				ticket, err := s.LinkTicket(ctx, args[0], ticketID)
				if err != nil {
					return err
				}
				return printJSONOrTable(ticket)
			})
		},
	}
	cmd.Flags().IntVar(&ticketID, "ticket", 0, "ticket id")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func syncUnlinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlink <project-id>",
		Short: "Clear a project's ticket link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				if err := s.UnlinkTicket(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("project unlinked")
				return nil
			})
		},
	}
	return cmd
}

func syncAddNoteCmd() *cobra.Command {
	var in syncer.AddNoteInput
	var public bool
	cmd := &cobra.Command{
		Use:   "add-note",
		Short: "Add a note to a ticket (private by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("public") {
				private := !public
				in.IsPrivate = &private
			}
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				action, err := s.AddNote(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(action)
			})
		},
	}
	cmd.Flags().IntVar(&in.TicketID, "ticket", 0, "ticket id")
	cmd.Flags().StringVar(&in.Note, "note", "", "note text")
	cmd.Flags().BoolVar(&public, "public", false, "make the note visible to the end user")
	_ = cmd.MarkFlagRequired("ticket")
	_ = cmd.MarkFlagRequired("note")
	return cmd
}

func syncUpdateTicketCmd() *cobra.Command {
	var ticketID int
	var summary, details, status string
	cmd := &cobra.Command{
		Use:   "update-ticket",
		Short: "Partially update a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := syncer.UpdateTicketInput{TicketID: ticketID}
			if cmd.Flags().Changed("summary") {
				in.NewSummary = &summary
			}
			if cmd.Flags().Changed("details") {
				in.NewDetails = &details
			}
			if cmd.Flags().Changed("status") {
				in.Status = &status
			}
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				ticket, err := s.UpdateTicket(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(ticket)
			})
		},
	}
	cmd.Flags().IntVar(&ticketID, "ticket", 0, "ticket id")
	cmd.Flags().StringVar(&summary, "summary", "", "new summary")
	cmd.Flags().StringVar(&details, "details", "", "new details")
	cmd.Flags().StringVar(&status, "status", "", "internal status to map (planning, on_hold, completed)")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func syncGetTicketCmd() *cobra.Command {
	var ticketID int
	cmd := &cobra.Command{
		Use:   "get-ticket",
		Short: "Fetch a ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSyncer(cmd.Context(), func(ctx context.Context, s *syncer.Syncer) error {
				ticket, err := s.GetTicket(ctx, ticketID)
				if err != nil {
					return err
				}
				return printJSONOrTable(ticket)
			})
		},
	}
	cmd.Flags().IntVar(&ticketID, "ticket", 0, "ticket id")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func integrationCmd() *cobra.Command {
	i := &cobra.Command{Use: "integration", Short: "HaloPSA integration settings"}
	i.AddCommand(integrationShowCmd())
	i.AddCommand(integrationSetCmd())
	return i
}

func integrationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show integration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetIntegrationSettings(ctx, repo.MainSettingKey)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func integrationSetCmd() *cobra.Command {
	var authURL, apiURL string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set integration base URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s := domain.IntegrationSettings{
					SettingKey:  repo.MainSettingKey,
					HaloAuthURL: authURL,
					HaloAPIURL:  apiURL,
				}
				if err := r.UpsertIntegrationSettings(ctx, s); err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&authURL, "auth-url", "", "HaloPSA auth base URL")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "HaloPSA API base URL")
	_ = cmd.MarkFlagRequired("auth-url")
	_ = cmd.MarkFlagRequired("api-url")
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Audit log"}
	a.AddCommand(auditTailCmd())
	return a
}

func auditTailCmd() *cobra.Command {
	var f repo.AuditFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				entries, err := r.ListAuditEntries(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Action", "Entity", "Details"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.CreatedAt, e.Action, e.EntityType + "/" + e.EntityID, e.Details})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Action, "action", "", "action filter")
	cmd.Flags().StringVar(&f.EntityType, "entity-type", "", "entity type filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of entries")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default syncline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate syncline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	a.AddCommand(apikeyCreateCmd())
	a.AddCommand(apikeyListCmd())
	a.AddCommand(apikeyDeleteCmd())
	return a
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "api_key": secret})
				}
				fmt.Printf("API key (save it, it is not stored): %s\n", secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				fmt.Println("migrations applied")
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			fileCfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if fileCfg != nil {
				if err := r.SeedIntegrationSettings(cmd.Context(), fileCfg.Integration.AuthURL, fileCfg.Integration.APIURL); err != nil {
					return err
				}
				if basePath == "" {
					basePath = fileCfg.Server.BasePath
				}
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SYNCLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SYNCLINE_JWT_SECRET is required for bearer auth")
			}
			if fileCfg != nil {
				authCfg.AllowLegacyActorHeader = fileCfg.Server.AllowLegacyActorHeader
			}
			auditLogger := audit.New(r, nil, 0)
			defer auditLogger.Close()
			s := syncer.New(r, auditLogger, halo.NewTokenCache())
			handler, err := server.New(server.Config{
				Repo:     r,
				Syncer:   s,
				BasePath: basePath,
				Auth:     authCfg,
				File:     fileCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Syncline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default /v0 or config value)")
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func withSyncer(ctx context.Context, fn func(context.Context, *syncer.Syncer) error) error {
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		auditLogger := audit.New(r, nil, 0)
		defer auditLogger.Close()
		s := syncer.New(r, auditLogger, halo.NewTokenCache())
		return fn(ctx, s)
	})
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
