package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadline/leadline/adapters/clock"
	"github.com/leadline/leadline/adapters/idgen"
	"github.com/leadline/leadline/adapters/jsonfile"
	"github.com/leadline/leadline/config"
	"github.com/leadline/leadline/ports"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
	Long: `Manage LeadLine accounts.

Each account owns a capture widget and is assigned to a plan that
caps its daily contact submissions and per-minute chat turns.

Examples:
  leadline users list
  leadline users add --username ada --password 'correct horse' --plan pro
  leadline users set-plan ada biz`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE:  runUsersList,
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an account",
	RunE:  runUsersAdd,
}

var usersSetPlanCmd = &cobra.Command{
	Use:   "set-plan <username> <plan>",
	Short: "Move an account to a different plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runUsersSetPlan,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersDelete,
}

var (
	userUsername string
	userPassword string
	userPlanID   string
	userRole     string
)

func init() {
	rootCmd.AddCommand(usersCmd)

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersSetPlanCmd)
	usersCmd.AddCommand(usersDeleteCmd)

	usersAddCmd.Flags().StringVar(&userUsername, "username", "", "username (required)")
	usersAddCmd.Flags().StringVar(&userPassword, "password", "", "password (required)")
	usersAddCmd.Flags().StringVar(&userPlanID, "plan", "free", "plan tier")
	usersAddCmd.Flags().StringVar(&userRole, "role", "user", "role (user or owner)")
}

// openUserStore builds a store against the configured data dir, outside the
// running server.
func openUserStore() (*jsonfile.UserStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return jsonfile.NewUserStore(cfg.Storage.DataDir, clock.Real{}, idgen.UUID{}, zerolog.Nop()), nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	store, err := openUserStore()
	if err != nil {
		return err
	}

	users, err := store.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tPLAN\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Username, u.Role, u.Plan, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	if userUsername == "" || userPassword == "" {
		return fmt.Errorf("--username and --password are required")
	}

	store, err := openUserStore()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(userPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := ports.User{
		Username: userUsername,
		PassHash: hash,
		Role:     userRole,
		Plan:     userPlanID,
	}
	if err := store.Create(context.Background(), u); err != nil {
		return err
	}

	fmt.Printf("created account %s (plan %s)\n", userUsername, userPlanID)
	return nil
}

func runUsersSetPlan(cmd *cobra.Command, args []string) error {
	store, err := openUserStore()
	if err != nil {
		return err
	}

	if err := store.SetPlan(context.Background(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("moved %s to plan %s\n", args[0], args[1])
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	store, err := openUserStore()
	if err != nil {
		return err
	}

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}
