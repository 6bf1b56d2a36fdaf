package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/devadev/deva/internal/agent"
	"github.com/devadev/deva/internal/credential"
	"github.com/devadev/deva/internal/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored API keys",
	Long: `Store or delete per-agent API keys in the OS keyring (with a
file fallback when no keyring is available). Stored keys are used by
key-based auth methods when no --credential-file or env var is set.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key <agent>",
	Short: "Store an API key for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := agent.Get(args[0])
		if a == nil {
			return fmt.Errorf("unknown agent %q (have: %s)", args[0], strings.Join(agent.Names(), ", "))
		}
		fmt.Printf("API key for %s: ", a.Name())
		key, err := readSecret()
		fmt.Println()
		if err != nil {
			return err
		}
		if key == "" {
			return fmt.Errorf("empty key")
		}
		if err := credential.SetKey(a.Name(), key); err != nil {
			return err
		}
		ui.Successf("Stored key for %s", a.Name())
		return nil
	},
}

var authRmKeyCmd = &cobra.Command{
	Use:   "rm-key <agent>",
	Short: "Delete an agent's stored API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := agent.Get(args[0])
		if a == nil {
			return fmt.Errorf("unknown agent %q (have: %s)", args[0], strings.Join(agent.Names(), ", "))
		}
		if err := credential.DeleteKey(a.Name()); err != nil {
			return err
		}
		ui.Successf("Deleted key for %s", a.Name())
		return nil
	},
}

func init() {
	authCmd.AddCommand(authSetKeyCmd)
	authCmd.AddCommand(authRmKeyCmd)
	rootCmd.AddCommand(authCmd)
}

// readSecret reads a key from stdin without echoing when stdin is a
// terminal; piped input is read as a single line.
func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
