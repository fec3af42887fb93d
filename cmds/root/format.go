package root

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

// AddOutputFlags registers the --output and --format flags used by
// WriteValue.
func AddOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Write output to file [default: -]")
	cmd.Flags().StringP("format", "f", "yaml", "Select output format: yaml or json")
}

// Formatter renders a value for display.
type Formatter func(any) ([]byte, error)

// FormatterFor returns the formatter registered under name.
func FormatterFor(name string) (Formatter, error) {
	switch name {
	case "yaml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return nil, fmt.Errorf("unsupported output format '%s'", name)
	}
}

// FormatYAML renders value as YAML, honouring its json field names.
func FormatYAML(value any) ([]byte, error) {
	return yaml.Marshal(value)
}

func FormatJSON(value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteValue renders value with the --format flag to out, or to the file
// named by --output.
func WriteValue(flags *pflag.FlagSet, out io.Writer, value any) error {
	format, _ := flags.GetString("format")
	if format == "" {
		format = "yaml"
	}
	formatter, err := FormatterFor(format)
	if err != nil {
		return err
	}
	data, err := formatter(value)
	if err != nil {
		return fmt.Errorf("error rendering result, error: %s", err)
	}

	if output, _ := flags.GetString("output"); len(output) != 0 {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file '%s', error: %s", output, err)
		}
		defer file.Close()
		out = file
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("error writing result, error: %s", err)
	}
	return nil
}
