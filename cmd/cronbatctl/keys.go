package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cronbat/internal/apikey"
	"github.com/kiranshivaraju/cronbat/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage console API keys",
	}
	cmd.AddCommand(a.keysCreateCmd(), a.keysListCmd(), a.keysRevokeCmd())
	return cmd
}

func (a *app) keysCreateCmd() *cobra.Command {
	var (
		name   string
		scopes []string
	)
	cmd := &cobra.Command{
		Use:   "create --name <name> [--scope read|operate|admin]...",
		Short: "Create an API key and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, key, err := apikey.Generate(name, scopes, bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			ks, closeFn, err := a.keys(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := ks.CreateAPIKey(cmd.Context(), key); err != nil {
				if errors.Is(err, store.ErrDuplicateKey) {
					return fmt.Errorf("a key named %q already exists", key.Name)
				}
				return err
			}

			fmt.Fprintf(a.out, "id:     %s\n", key.ID)
			fmt.Fprintf(a.out, "name:   %s\n", key.Name)
			fmt.Fprintf(a.out, "scopes: %s\n", strings.Join(key.Scopes, ","))
			fmt.Fprintf(a.out, "key:    %s\n", raw)
			fmt.Fprintln(a.out, "store the key now, it cannot be shown again")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "granted scope (repeatable, default read)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, closeFn, err := a.keys(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := ks.ListAPIKeys(cmd.Context())
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(a.out, "no keys")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tSCOPES\tLAST USED")
			for _, k := range keys {
				lastUsed := "never"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed)
			}
			return tw.Flush()
		},
	}
}

func (a *app) keysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q", args[0])
			}

			ks, closeFn, err := a.keys(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := ks.RevokeAPIKey(cmd.Context(), id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("key %s not found", id)
				}
				return err
			}
			fmt.Fprintf(a.out, "revoked %s\n", id)
			return nil
		},
	}
}
