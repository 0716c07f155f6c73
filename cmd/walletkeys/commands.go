package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joncooperworks/walletkeys/crypto"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
)

func (c *cli) genkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate an ed25519 key and store it encrypted",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().String("id", "", "Key id (default: a random UUID)")
	cmd.Flags().String("encrypter", "", "Encrypter name (default from config)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetString("id")
		encrypterName, _ := cmd.Flags().GetString("encrypter")
		if id == "" {
			id = uuid.NewString()
		}

		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		seed := priv.Seed()
		key := keystore.Key{
			ID:         id,
			Type:       keystore.KeyTypePlaintext,
			PublicKey:  hex.EncodeToString(pub),
			PrivateKey: hex.EncodeToString(seed),
		}
		crypto.ZeroizeBytes(seed)
		crypto.ZeroizeBytes(priv)

		password, err := c.password(cmd, "password", "Password: ")
		if err != nil {
			return err
		}

		meta, err := c.app.manager.StoreKey(cmd.Context(), key, password, encrypterName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", meta.ID, key.PublicKey)
		return nil
	}
	return cmd
}

func (c *cli) addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Encrypt and store an existing key",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().String("id", "", "Key id (default: a random UUID)")
	cmd.Flags().String("type", string(keystore.KeyTypePlaintext), "Key type: plaintextKey, ledger, trezor, freighter, albedo")
	cmd.Flags().String("public-key", "", "Public key")
	cmd.Flags().String("private-key", "", "Private key")
	cmd.Flags().String("private-key-file", "", "File from which to read the private key")
	cmd.Flags().String("path", "", "Derivation path for hardware keys")
	cmd.Flags().String("extra", "", "Extra JSON metadata")
	cmd.Flags().String("encrypter", "", "Encrypter name (default from config)")
	_ = cmd.MarkFlagRequired("public-key")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetString("id")
		keyType, _ := cmd.Flags().GetString("type")
		publicKey, _ := cmd.Flags().GetString("public-key")
		privateKey, _ := cmd.Flags().GetString("private-key")
		privateKeyFile, _ := cmd.Flags().GetString("private-key-file")
		path, _ := cmd.Flags().GetString("path")
		extra, _ := cmd.Flags().GetString("extra")
		encrypterName, _ := cmd.Flags().GetString("encrypter")

		privateKey, err := resolvePrivateKey(privateKey, privateKeyFile)
		if err != nil {
			return err
		}
		if id == "" {
			id = uuid.NewString()
		}

		key := keystore.Key{
			ID:         id,
			Type:       keystore.KeyType(keyType),
			PublicKey:  publicKey,
			PrivateKey: privateKey,
			Path:       path,
		}
		if extra != "" {
			if !json.Valid([]byte(extra)) {
				return fmt.Errorf("--extra is not valid JSON")
			}
			key.Extra = json.RawMessage(extra)
		}

		password, err := c.password(cmd, "password", "Password: ")
		if err != nil {
			return err
		}

		meta, err := c.app.manager.StoreKey(cmd.Context(), key, password, encrypterName)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), meta.ID)
		return nil
	}
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored key ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := c.app.manager.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k.ID)
			}
			return nil
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Decrypt a key and print it as JSON",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().Bool("reveal", false, "Include the private key in the output")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		reveal, _ := cmd.Flags().GetBool("reveal")

		password, err := c.password(cmd, "password", "Password: ")
		if err != nil {
			return err
		}

		key, err := c.app.manager.LoadKey(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		if !reveal {
			key.PrivateKey = ""
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(key)
	}
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := c.app.manager.RemoveKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), meta.ID)
			return nil
		},
	}
}

func (c *cli) passwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Re-encrypt every stored key under a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			oldPassword, err := c.password(cmd, "password", "Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := c.password(cmd, "new_password", "New password: ")
			if err != nil {
				return err
			}

			keys, err := c.app.manager.ChangePassword(cmd.Context(), oldPassword, newPassword)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "re-encrypted %d keys\n", len(keys))
			return nil
		},
	}
}

func (c *cli) encryptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypters",
		Short: "List available encrypters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def := c.app.manager.DefaultEncrypter()
			for _, name := range c.app.manager.Encrypters() {
				if name == def {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (default)\n", name)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// resolvePrivateKey returns the private key given directly or read from file.
func resolvePrivateKey(privateKey, privateKeyFile string) (string, error) {
	if privateKey != "" && privateKeyFile != "" {
		return "", fmt.Errorf("--private-key and --private-key-file are mutually exclusive")
	}
	if privateKeyFile == "" {
		return privateKey, nil
	}
	data, err := os.ReadFile(privateKeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read private key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
