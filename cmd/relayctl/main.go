// relayctl is a maintenance tool operating directly on the relay database.
// It covers the chores an operator occasionally needs: purging room history,
// inspecting published keys and wiping them after a security incident.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vibechat/relay/internal/store"
	"github.com/vibechat/relay/internal/store/sqlite"
)

var dbPath string

func openStore() (*sqlite.SQLiteStore, error) {
	return sqlite.New(dbPath)
}

func main() {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Maintenance tool for the relay database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "relay.db", "path to SQLite database")

	rooms := &cobra.Command{Use: "rooms", Short: "Room maintenance"}
	rooms.AddCommand(&cobra.Command{
		Use:   "purge <slug>",
		Short: "Delete every message in a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			room, err := st.GetRoomBySlug(ctx, args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("room %q not found", args[0])
				}
				return err
			}
			deleted, err := st.ClearRoomMessages(ctx, room.ID)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d messages from %s\n", deleted, args[0])
			return nil
		},
	})

	keys := &cobra.Command{Use: "keys", Short: "Published key maintenance"}
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every published key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.ListPublicKeys(context.Background())
			if err != nil {
				return err
			}
			for _, key := range list {
				fmt.Printf("user=%d alg=%s fingerprint=%s updated=%s\n",
					key.UserID, key.Algorithm, key.Fingerprint, key.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("%d keys\n", len(list))
			return nil
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "delete <username>",
		Short: "Delete one user's published key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			user, err := st.GetUserByUsername(ctx, args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %q not found", args[0])
				}
				return err
			}
			if err := st.DeletePublicKey(ctx, user.ID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %q has no published key", args[0])
				}
				return err
			}
			fmt.Printf("deleted key of %s\n", args[0])
			return nil
		},
	})

	var resetConfirmed bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every published key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !resetConfirmed {
				return errors.New("pass --yes to confirm wiping all keys")
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			removed, err := st.DeleteAllPublicKeys(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d keys\n", removed)
			return nil
		},
	}
	reset.Flags().BoolVar(&resetConfirmed, "yes", false, "confirm the wipe")
	keys.AddCommand(reset)

	root.AddCommand(rooms, keys)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
