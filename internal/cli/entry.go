package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/models"
)

func newAddCmd() *cobra.Command {
	var label, notes string
	cmd := &cobra.Command{
		Use:   "add <site> <account>",
		Short: "Add an encrypted entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			token, passphrase, cleanup, err := withSession(ctx, a)
			if err != nil {
				return err
			}
			defer cleanup()

			secret, err := GetPassword("Secret value: ", cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer common.WipeByteArray(secret)

			sess, err := a.Sessions.Validate(token)
			if err != nil {
				return err
			}
			blob, err := sess.Engine.Encrypt(string(secret), passphrase)
			if err != nil {
				return err
			}

			var labelPtr, notesPtr *string
			if label != "" {
				labelPtr = &label
			}
			if notes != "" {
				notesPtr = &notes
			}
			id, err := a.Store.AddEntry(ctx, sess.OwnerID, args[0], args[1], blob, labelPtr, notesPtr)
			if err != nil {
				return err
			}
			fmt.Printf("Entry added (id %d)\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "optional label")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")
	return cmd
}

func newListCmd() *cobra.Command {
	var (
		text      string
		favorites bool
		limit     int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries (site, account and metadata only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			token, _, cleanup, err := withSession(ctx, a)
			if err != nil {
				return err
			}
			defer cleanup()

			sess, err := a.Sessions.Validate(token)
			if err != nil {
				return err
			}

			page, err := a.Store.SearchEntries(ctx, sess.OwnerID, &models.EntryFilter{
				Text:         text,
				FavoriteOnly: favorites,
				Limit:        limit,
				Offset:       offset,
			})
			if err != nil {
				return err
			}

			bold := color.New(color.Bold)
			for _, e := range page.Entries {
				star := " "
				if e.Favorite {
					star = "*"
				}
				label := ""
				if e.Label != nil {
					label = " (" + *e.Label + ")"
				}
				bold.Printf("%s %6d  %s", star, e.ID, e.Site)
				fmt.Printf("  %s%s  modified %s\n", e.Account, label, e.ModifiedAt.Format(time.RFC3339))
			}
			fmt.Printf("%d of %d entries\n", len(page.Entries), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "filter", "", "case-insensitive match on site or label")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "favorites only")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Decrypt and print one entry's secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad entry id %q", common.ErrInvalidInput, args[0])
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			token, passphrase, cleanup, err := withSession(ctx, a)
			if err != nil {
				return err
			}
			defer cleanup()

			sess, err := a.Sessions.Validate(token)
			if err != nil {
				return err
			}

			entries, err := a.Store.GetEntries(ctx, sess.OwnerID, "")
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.ID != entryID {
					continue
				}
				plaintext, err := sess.Engine.Decrypt(e.Secret, passphrase)
				if err != nil {
					return err
				}
				fmt.Printf("%s @ %s: %s\n", e.Account, e.Site, plaintext)
				return nil
			}
			return common.ErrorNotFound
		},
	}
}

func newUpdateCmd() *cobra.Command {
	var (
		site     string
		account  string
		label    string
		notes    string
		favorite bool
	)
	cmd := &cobra.Command{
		Use:   "update <entry-id>",
		Short: "Update fields of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad entry id %q", common.ErrInvalidInput, args[0])
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			token, _, cleanup, err := withSession(ctx, a)
			if err != nil {
				return err
			}
			defer cleanup()

			sess, err := a.Sessions.Validate(token)
			if err != nil {
				return err
			}

			patch := &models.EntryPatch{}
			if cmd.Flags().Changed("site") {
				patch.Site = &site
			}
			if cmd.Flags().Changed("account") {
				patch.Account = &account
			}
			if cmd.Flags().Changed("label") {
				patch.Label = &label
			}
			if cmd.Flags().Changed("notes") {
				patch.Notes = &notes
			}
			if cmd.Flags().Changed("favorite") {
				patch.Favorite = &favorite
			}

			ok, err := a.Store.UpdateEntry(ctx, entryID, sess.OwnerID, patch)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrorNotFound
			}
			fmt.Println("Entry updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "new site")
	cmd.Flags().StringVar(&account, "account", "", "new account")
	cmd.Flags().StringVar(&label, "label", "", "new label")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().BoolVar(&favorite, "favorite", false, "favorite flag")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad entry id %q", common.ErrInvalidInput, args[0])
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			token, _, cleanup, err := withSession(ctx, a)
			if err != nil {
				return err
			}
			defer cleanup()

			sess, err := a.Sessions.Validate(token)
			if err != nil {
				return err
			}

			ok, err := a.Store.DeleteEntry(ctx, entryID, sess.OwnerID)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrorNotFound
			}
			fmt.Println("Entry deleted")
			return nil
		},
	}
}
