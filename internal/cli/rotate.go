package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dpetrovs/passvault/internal/common"
)

func newRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the master passphrase, re-encrypting every entry",
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

			newPass, err := GetPassword("New master passphrase: ", cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer common.WipeByteArray(newPass)
			confirm, err := GetPassword("Repeat new passphrase: ", cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer common.WipeByteArray(confirm)

			if string(newPass) != string(confirm) {
				return fmt.Errorf("%w: passphrases do not match", common.ErrInvalidInput)
			}

			n, err := a.Rotator.Rotate(ctx, token, string(passphrase), string(newPass))
			if err != nil {
				return err
			}
			fmt.Printf("Rotated %d entries\n", n)
			return nil
		},
	}
}
