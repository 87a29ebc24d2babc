package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List cached conversations, most recently used first",
	Args:    cobra.NoArgs,
	RunE:    listConversations,
}

func listConversations(cmd *cobra.Command, _ []string) error {
	st, err := store.NewSQLite(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer closeCache(st)

	sums, err := st.ListConversations(cmd.Context())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(sums) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no conversations")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
