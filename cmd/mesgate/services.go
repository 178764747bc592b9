package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/artpar/mesgate/config"
	"github.com/artpar/mesgate/core/openapi"
	"github.com/artpar/mesgate/core/schema"
	"github.com/spf13/cobra"
)

var servicesPath string

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Inspect the service catalogue",
	Long: `Inspect the services document.

The document is read from --services, then services.path in the config,
and falls back to the built-in catalogue.`,
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List services",
	RunE:  runServicesList,
}

var servicesShowCmd = &cobra.Command{
	Use:   "show <service>",
	Short: "Show the fields of a service",
	Args:  cobra.ExactArgs(1),
	RunE:  runServicesShow,
}

var servicesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the services document as YAML",
	Long: `Print the services document in canonical YAML form.

Examples:
  mesgate services export > services.yaml
  mesgate services export --openapi > openapi.json`,
	RunE: runServicesExport,
}

var (
	showJSONSchema bool
	exportOpenAPI  bool
)

func init() {
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesListCmd, servicesShowCmd, servicesExportCmd)

	servicesCmd.PersistentFlags().StringVar(&servicesPath, "services", "", "services.yaml to read instead of the configured one")
	servicesShowCmd.Flags().BoolVar(&showJSONSchema, "json-schema", false, "print the JSON Schema of the payload")
	servicesExportCmd.Flags().BoolVar(&exportOpenAPI, "openapi", false, "print an OpenAPI 3.0 description of the API instead")
}

// loadDocument reads the document at path, or the built-in one when path is
// empty. The second result names the source.
func loadDocument(path string) (*schema.Document, string, error) {
	if path == "" {
		return schema.Builtin(), "built-in", nil
	}
	doc, err := schema.ParseFile(path)
	if err != nil {
		return nil, path, err
	}
	return doc, path, nil
}

// resolveDocument applies the --services > config > built-in precedence.
func resolveDocument() (*schema.Document, string, error) {
	path := servicesPath
	if path == "" {
		if _, err := os.Stat(cfgFile); err == nil {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return nil, "", fmt.Errorf("config error: %w", err)
			}
			path = cfg.Services.Path
		} else {
			path = os.Getenv("MESGATE_SERVICES_PATH")
		}
	}
	return loadDocument(path)
}

func runServicesList(cmd *cobra.Command, args []string) error {
	doc, _, err := resolveDocument()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTARGET\tFIELDS\tDESCRIPTION")
	for _, svc := range doc.Services {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", svc.Name, targetString(svc.Target), len(svc.Fields), svc.Description)
	}
	return w.Flush()
}

func runServicesShow(cmd *cobra.Command, args []string) error {
	doc, _, err := resolveDocument()
	if err != nil {
		return err
	}
	svc, ok := doc.Service(args[0])
	if !ok {
		return fmt.Errorf("unknown service: %s", args[0])
	}

	out := cmd.OutOrStdout()
	if showJSONSchema {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(schema.JSONSchema(svc))
	}

	fmt.Fprintf(out, "%s\n", svc.Name)
	if svc.Description != "" {
		fmt.Fprintf(out, "  %s\n", svc.Description)
	}
	fmt.Fprintf(out, "  target: %s\n", targetString(svc.Target))
	if schema.AcceptsMeterCode(svc) {
		fmt.Fprintln(out, "  accepts meter_code in place of entity_id")
	}
	if len(svc.Fields) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tSELECTOR\tREQUIRED\tDEFAULT\tDESCRIPTION")
	for _, f := range svc.Fields {
		def := "-"
		if f.HasDefault() {
			def = fmt.Sprint(f.Default)
		}
		name := f.Name
		if f.Advanced {
			name += " (advanced)"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", name, f.Selector.Type(), f.Required, def, f.Description)
	}
	return w.Flush()
}

func runServicesExport(cmd *cobra.Command, args []string) error {
	doc, _, err := resolveDocument()
	if err != nil {
		return err
	}

	var data []byte
	if exportOpenAPI {
		g := openapi.NewGenerator(doc)
		g.SetInfo(openapi.Info{Title: "mesgate API", Version: version})
		data, err = g.Generate().ToJSON()
	} else {
		data, err = schema.Marshal(doc)
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func targetString(t schema.Target) string {
	var parts []string
	if t.Entity.Integration != "" {
		parts = append(parts, "integration="+t.Entity.Integration)
	}
	if t.Entity.DeviceClass != "" {
		parts = append(parts, "device_class="+t.Entity.DeviceClass)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
