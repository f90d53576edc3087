package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/virtfs/pkg/config"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the virtfs configuration file",
		Annotations: map[string]string{"setup": "none"},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default applied",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			if a.configPath != "" {
				path, err = config.InitConfigAt(a.configPath, force)
			} else {
				path, err = config.InitConfig(force)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			reflector := jsonschema.Reflector{
				AllowAdditionalProperties: false,
				DoNotReference:            true,
				FieldNameTag:              "yaml",
			}

			schema := reflector.Reflect(&config.Config{})
			schema.Title = "virtfs Configuration"
			schema.Description = "Configuration schema for the virtfs tools"

			schemaJSON, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, schemaCmd)
	return cmd
}
