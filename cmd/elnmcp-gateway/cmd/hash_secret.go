package cmd

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [eln-secret]",
	Short: "Generate an Argon2id hash of an ELN secret for at-rest storage",
	Long: `Generate an Argon2id hash of the ELN access password or SSO token,
for use in auth.access_password_hash.

The gateway still requires the plaintext secret at runtime (via the
ELNMCP_AUTH_ACCESS_PASSWORD environment variable) to sign or attach
requests; the hash only lets that plaintext be verified against a value
safe to commit to the config file, instead of storing it in the clear.

Example:
  elnmcp-gateway hash-secret "$ELN_ACCESS_PASSWORD"

Security note: the secret will appear in shell history unless passed via
an environment variable as shown above.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
		if err != nil {
			return fmt.Errorf("hash secret: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}
