package cmd

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ABHIRAMSHIBU/internetradio/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing internetradio configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

Redirect the output to a file to create a configuration template:

  internetradio config dump > config.yaml

Configuration can be set via:
  - Config file (./config.yaml, $HOME/.internetradio/config.yaml, /etc/internetradio/config.yaml)
  - Environment variables (INTERNETRADIO_SERVER_PORT, INTERNETRADIO_SOURCE_MEDIA_DIR, etc.)
  - A .env file in the working directory
  - Command-line flags (for some options)

Environment variables use the INTERNETRADIO_ prefix and underscores for nesting.
Example: relay.max_sessions -> INTERNETRADIO_RELAY_MAX_SESSIONS`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations in their human readable form.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return writeConfigYAML(cmd.OutOrStdout(), cfg)
}

func writeConfigYAML(w io.Writer, cfg *config.Config) error {
	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	header := `# internetradio configuration file
#
# All values shown below are defaults.
# Duration format: 100ms, 30s, 5m, 1h
#
# Environment variable overrides:
#   INTERNETRADIO_SERVER_HOST, INTERNETRADIO_SERVER_PORT
#   INTERNETRADIO_SOURCE_INITIAL, INTERNETRADIO_SOURCE_MEDIA_DIR
#   INTERNETRADIO_RELAY_ENGINE, INTERNETRADIO_FFMPEG_BINARY_PATH
#   INTERNETRADIO_DATABASE_DRIVER, INTERNETRADIO_DATABASE_DSN
#   INTERNETRADIO_LOGGING_LEVEL, INTERNETRADIO_LOGGING_FORMAT
#   etc.

`
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err = w.Write(yamlData)
	return err
}
