package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/toolchat/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("toolchat setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		for {
			cfg.Backend = prompt(scanner, "Backend (gemini or groq)", cfg.Backend)
			if cfg.Backend == config.BackendGemini || cfg.Backend == config.BackendGroq {
				break
			}
			fmt.Println("Please answer gemini or groq.")
		}

		switch cfg.Backend {
		case config.BackendGemini:
			cfg.Gemini.APIKey = promptSecret(scanner, "Google API key", cfg.Gemini.APIKey)
			cfg.Gemini.Model = prompt(scanner, "Gemini model", cfg.Gemini.Model)
		case config.BackendGroq:
			cfg.Groq.APIKey = promptSecret(scanner, "Groq API key", cfg.Groq.APIKey)
			cfg.Groq.Model = prompt(scanner, "Groq model", cfg.Groq.Model)
		}

		cfg.Telegram.Token = promptSecret(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

// promptSecret is prompt with the default shown masked.
func promptSecret(scanner *bufio.Scanner, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, config.Mask(current))
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return current
}
