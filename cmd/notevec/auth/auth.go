// Package authcmder provides the auth command for storing API credentials of
// embedding providers.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/credentials"
)

const authLongDesc string = `Store API credentials for embedding providers.

Credentials are stored in credentials.toml in the .notevec/ directory and
used whenever embedding.api_key is not configured. The provider's
environment variable is consulted when nothing is stored.

Supported providers: openai

Examples:
  notevec auth openai              Prompt for OpenAI API key
  notevec auth --list              List stored credentials
  notevec auth --remove openai     Remove stored OpenAI credentials
  echo $KEY | notevec auth openai  Pipe API key from stdin`

const authShortDesc string = "Store API credentials for embedding providers"

type authCommander struct {
	list   bool
	remove string

	// isTerminal and readPassword are replaced in tests.
	isTerminal   func() bool
	readPassword func() ([]byte, error)
}

func NewAuthCmd() *cobra.Command {
	return newAuthCmd(&authCommander{
		isTerminal:   func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) },
	})
}

func newAuthCmd(cmder *authCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			switch {
			case cmder.list:
				return cmder.runList(cmd.OutOrStdout(), configDir)
			case cmder.remove != "":
				return cmder.runRemove(cmd.OutOrStdout(), cmder.remove, configDir)
			default:
				if len(args) == 0 {
					return fmt.Errorf("provider argument required\n\nSupported providers: %s",
						strings.Join(credentials.SupportedProviders(), ", "))
				}
				return cmder.runAuth(cmd, args[0], configDir)
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&cmder.list, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&cmder.remove, "remove", "", "Remove stored credentials for a provider")

	return cmd
}

func (c *authCommander) runAuth(cmd *cobra.Command, provider, configDir string) error {
	out := cmd.OutOrStdout()
	provider = strings.ToLower(strings.TrimSpace(provider))

	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider: %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	apiKey, err := c.readAPIKey(out, cmd.InOrStdin(), provider)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(provider, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(provider),
		cliui.DimStyle.Render("(used when embedding.api_key is unset)"),
	)

	return nil
}

func (c *authCommander) runList(out io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	providers, err := mgr.ListProviders()
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Fprintf(out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'notevec auth <provider>' to store credentials.\n")
		fmt.Fprintf(out, "  Supported providers: %s\n\n", strings.Join(credentials.SupportedProviders(), ", "))
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, p := range providers {
		envVar := credentials.EnvVarForProvider(p)
		if envVar != "" {
			fmt.Fprintf(out, "  %s  %s  %s\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(p),
				cliui.DimStyle.Render("→ "+envVar),
			)
		} else {
			fmt.Fprintf(out, "  %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(p))
		}
	}
	fmt.Fprintln(out)

	return nil
}

func (c *authCommander) runRemove(out io.Writer, provider, configDir string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(provider))

	return nil
}

// readAPIKey prompts with hidden input on a terminal and otherwise reads the
// first line of in.
func (c *authCommander) readAPIKey(out io.Writer, in io.Reader, provider string) (string, error) {
	if !c.isTerminal() {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			return scanner.Text(), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return "", errors.New("no input received on stdin")
	}

	envVar := credentials.EnvVarForProvider(provider)
	fmt.Fprintf(out, "Enter API key for %s (%s): ", provider, envVar)

	keyBytes, err := c.readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}

	return string(keyBytes), nil
}
