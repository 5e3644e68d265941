package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML configuration file (optional)")
	cmd.PersistentFlags().String("sites", "", "Path to the sites file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("proxy", "", "Proxy list, comma separated (e.g., http://localhost:8080)")
	cmd.PersistentFlags().Int("max-contexts", 0, "Maximum concurrent browser contexts")
	cmd.PersistentFlags().Bool("headful", false, "Show the browser window")
	cmd.PersistentFlags().String("diagnosis-sink", "", "Where diagnosis records go: none, log, sqlite:<path>, a postgres:// DSN, or a comma separated list")
	cmd.PersistentFlags().String("forensics-dir", "", "Directory for forensic screenshots, none disables them")
	cmd.PersistentFlags().String("captcha-solver", "", "Captcha solver: none or manual (needs --headful)")
}
