package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/cli"
	"archival-hq/keeper/pkg/security/keys"
)

var keysFlags struct {
	dir   string
	keyID string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing and encryption keys",
	Long: `Generate and list the keys used to sign and encrypt archives.

Subcommands:
  generate - generate an ed25519 signing keypair
  list     - list the public keys in the keyring directory
  age      - generate an age X25519 identity for the age encryption scheme

Existing key files are never overwritten.

Examples:
  # Generate a signing keypair in the configured keyring directory
  keeper keys generate --key-id archive-2026

  # Generate an age identity into the secrets directory
  keeper keys age --dir /etc/keeper/secrets`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an ed25519 signing keypair",
	Long: `Generate an ed25519 keypair for archive signing.

The keys are saved to PEM files with restrictive permissions:
  - Public key:  <dir>/<key-id>_public.pem  (0644)
  - Private key: <dir>/<key-id>_private.pem (0600)`,
	Args: cobra.NoArgs,
	RunE: runKeysGenerate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List signing keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var ageFlags struct {
	dir  string
	name string
}

var keysAgeCmd = &cobra.Command{
	Use:   "age",
	Short: "Generate an age X25519 identity",
	Long: `Generate an age X25519 identity and store it as a secret file (mode 0600)
named after the configured identity secret. The matching recipient is
printed so it can be added to packaging.encryption.recipients.`,
	Args: cobra.NoArgs,
	RunE: runKeysAge,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysListCmd, keysAgeCmd)

	keysCmd.PersistentFlags().StringVar(&keysFlags.dir, "dir", "", "keyring directory (default packaging.signing.keyring_dir)")
	keysGenerateCmd.Flags().StringVar(&keysFlags.keyID, "key-id", "", "key id (default packaging.signing.key_id, else key-<unix time>)")

	keysAgeCmd.Flags().StringVar(&ageFlags.dir, "secrets-dir", "", "secrets directory (default secrets.file_dir)")
	keysAgeCmd.Flags().StringVar(&ageFlags.name, "name", "", "secret name (default packaging.encryption.identity_secret)")
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dir := keysFlags.dir
	if dir == "" {
		dir = cfg.Packaging.Signing.KeyringDir
	}
	keyID := keysFlags.keyID
	if keyID == "" {
		keyID = cfg.Packaging.Signing.KeyID
	}
	if keyID == "" {
		keyID = fmt.Sprintf("key-%d", time.Now().Unix())
	}

	kp, err := keys.GenerateKeypair(dir, keyID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key ID:      %s\n", kp.KeyID)
	fmt.Fprintf(out, "Public Key:  %s\n", kp.PublicKeyPath)
	fmt.Fprintf(out, "Private Key: %s\n", kp.PrivateKeyPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "⚠️  Store the private key securely and never commit it to version control")
	fmt.Fprintln(out, "✓  Keys generated successfully")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprintln(out, "packaging:")
	fmt.Fprintln(out, "  signing:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintf(out, "    key_id: %q\n", kp.KeyID)
	fmt.Fprintf(out, "    keyring_dir: %q\n", dir)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dir := keysFlags.dir
	if dir == "" {
		dir = cfg.Packaging.Signing.KeyringDir
	}
	ids, err := keys.ListKeyIDs(dir)
	if err != nil {
		return err
	}

	t := &cli.Table{Header: []string{"KEY ID", "PRIVATE KEY", "ACTIVE"}, Data: ids}
	for _, id := range ids {
		private := "no"
		if _, err := os.Stat(keys.PrivateKeyPath(dir, id)); err == nil {
			private = "yes"
		}
		active := ""
		if cfg.Packaging.Signing.Enabled && id == cfg.Packaging.Signing.KeyID {
			active = "signing"
		}
		t.Rows = append(t.Rows, []string{id, private, active})
	}
	return render(cmd, t)
}

func runKeysAge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dir := ageFlags.dir
	if dir == "" {
		dir = cfg.Secrets.FileDir
	}
	if dir == "" {
		return cli.NewConfigError("secrets.file_dir", "no secrets directory configured; pass --secrets-dir")
	}
	name := ageFlags.name
	if name == "" {
		name = cfg.Packaging.Encryption.IdentitySecret
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("failed to generate age identity: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	path := filepath.Join(dir, name)
	// #nosec G304 - path is the configured secrets directory plus the secret name.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("refusing to overwrite existing identity %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to create identity file: %w", err)
	}
	if _, err := fmt.Fprintln(f, identity.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Identity:  %s\n", path)
	fmt.Fprintf(out, "Recipient: %s\n", identity.Recipient().String())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprintln(out, "packaging:")
	fmt.Fprintln(out, "  encryption:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintln(out, "    scheme: age")
	fmt.Fprintf(out, "    recipients: [%q]\n", identity.Recipient().String())
	fmt.Fprintf(out, "    identity_secret: %q\n", name)
	return nil
}
