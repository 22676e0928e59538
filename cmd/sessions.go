package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mavrk/jobvine/internal/logger"
	"github.com/mavrk/jobvine/internal/store"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clean up stored conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recently updated first",
	Run: func(cmd *cobra.Command, _ []string) {
		db, err := openStore()
		if err != nil {
			cmd.PrintErrf("opening store: %v\n", err)
			return
		}

		all, err := db.ListSessions(context.Background())
		if err != nil {
			cmd.PrintErrf("listing sessions: %v\n", err)
			return
		}

		if len(all) == 0 {
			cmd.Println("no sessions stored")
			return
		}
		for _, s := range all {
			cmd.Printf("%d\t%s\t%s\tq=%d\tpeer=%d\tupdated=%s\n",
				s.UserID, s.Role, s.State, s.QuestionIndex, s.PeerUserID,
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete one user's session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.PrintErrf("invalid user id %q\n", args[0])
			return
		}

		confirm := promptui.Select{
			Label: fmt.Sprintf("Delete session for user %d?", userID),
			Items: []string{PromptYes, PromptNo},
		}
		_, answer, err := confirm.Run()
		if err != nil || answer != PromptYes {
			cmd.Println("aborted")
			return
		}

		db, err := openStore()
		if err != nil {
			cmd.PrintErrf("opening store: %v\n", err)
			return
		}
		if err := db.DeleteSession(context.Background(), userID); err != nil {
			cmd.PrintErrf("deleting session: %v\n", err)
			return
		}
		cmd.Printf("session for user %d deleted\n", userID)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func openStore() (*store.Store, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}
	if config.Store == nil {
		return nil, fmt.Errorf("store section is required")
	}

	log, err := logger.New(false, false)
	if err != nil {
		return nil, err
	}
	log.Debug("opening store", zap.String("driver", config.Store.Driver))

	return store.Open(config.Store.Driver, config.Store.DSN)
}
