package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpetrovs/passvault/internal/common"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Create a new identity in the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			reader := bufio.NewReader(os.Stdin)
			username, err := GetSimpleText(reader, "Username", os.Stdout)
			if err != nil {
				return err
			}
			passphrase, err := GetPassword("Master passphrase: ", os.Stdout)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(passphrase)
			confirm, err := GetPassword("Repeat passphrase: ", os.Stdout)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(confirm)

			if string(passphrase) != string(confirm) {
				return fmt.Errorf("%w: passphrases do not match", common.ErrInvalidInput)
			}

			id, err := a.Store.CreateIdentity(ctx, username, string(passphrase))
			if err != nil {
				return err
			}
			fmt.Printf("Identity created (id %d)\n", id)
			return nil
		},
	}
}
