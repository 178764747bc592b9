package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artpar/mesgate/adapters/clock"
	"github.com/artpar/mesgate/adapters/idgen"
	"github.com/artpar/mesgate/adapters/memory"
	"github.com/artpar/mesgate/app"
	"github.com/artpar/mesgate/core/validation"
	"github.com/artpar/mesgate/domain/notification"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	checkData string
	checkRun  bool
)

var checkCmd = &cobra.Command{
	Use:   "check <service>",
	Short: "Validate a service call payload",
	Long: `Validate a payload against a service and print the normalized call.

The payload is JSON or YAML. With --run the call is also executed against
the simulated portal and its demo meter 12345678.

Examples:
  mesgate check push_indications --data '{"meter_code": "12345678", "indications": "12400, 6800"}'
  mesgate check calculate_indications --data 'meter_code: "12345678"
indications: "12400, 6800"' --run`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.PersistentFlags().StringVar(&servicesPath, "services", "", "services.yaml to read instead of the configured one")
	checkCmd.Flags().StringVarP(&checkData, "data", "d", "", "call payload (JSON or YAML mapping)")
	checkCmd.Flags().BoolVar(&checkRun, "run", false, "execute the call against the simulated portal")
}

// parsePayload decodes a JSON or YAML mapping. Empty input is an empty payload.
func parsePayload(raw string) (map[string]any, error) {
	data := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return data, nil
	}
	if err := yaml.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("payload must be a JSON or YAML mapping: %w", err)
	}
	return data, nil
}

// jsonValue rewrites YAML mappings with non-string keys so the value can
// be encoded as JSON.
func jsonValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonValue(item)
		}
		return out
	default:
		return v
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	doc, source, err := resolveDocument()
	if err != nil {
		return err
	}
	svc, ok := doc.Service(args[0])
	if !ok {
		return fmt.Errorf("unknown service: %s", args[0])
	}

	data, err := parsePayload(checkData)
	if err != nil {
		return err
	}

	call, result := validation.ValidateCall(svc, data)
	if !result.Valid {
		for _, fe := range result.Errors {
			fmt.Fprintf(out, "  %s %s: %s (%s)\n", crossMark, fe.Field, fe.Message, fe.Constraint)
		}
		return fmt.Errorf("%d validation error(s)", len(result.Errors))
	}

	fmt.Fprintf(out, "  %s %s call is valid\n", checkMark, svc.Name)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"service":    call.Service,
		"entity_id":  call.EntityIDs,
		"meter_code": call.MeterCode,
		"data":       jsonValue(call.Data),
	}); err != nil {
		return err
	}

	if !checkRun {
		return nil
	}

	if source == "built-in" {
		source = ""
	}
	res, notes, err := simulateCall(svc.Name, source, data)
	if err != nil {
		fmt.Fprintf(out, "  %s call failed\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s call succeeded\n", checkMark)
	if err := enc.Encode(res); err != nil {
		return err
	}
	for _, n := range notes {
		fmt.Fprintf(out, "  notification %s: %s\n", n.ID, n.Message)
	}
	return nil
}

// simulateCall runs one call through a dispatcher backed by the in-memory
// portal and stores.
func simulateCall(service, servicesFile string, data map[string]any) (app.Result, []notification.Notification, error) {
	ctx := context.Background()
	logger := zerolog.Nop()
	c := clock.Real{}

	schemaSvc, err := app.NewSchemaService(servicesFile, logger, nil)
	if err != nil {
		return app.Result{}, nil, err
	}
	notifications := memory.NewNotificationStore()

	d := app.NewDispatcher(app.DispatcherDeps{
		Schema:   schemaSvc,
		Entities: memory.NewEntityStore(),
		Portal:   memory.NewPortal(c, memory.DefaultRate, memory.DemoEntities(c.Now())...),
		Notifier: notifications,
		Clock:    c,
		IDGen:    idgen.UUID{},
		Logger:   logger,
	}, app.DispatcherConfig{})

	if _, err := d.Sync(ctx); err != nil {
		return app.Result{}, nil, err
	}

	res, err := d.Call(ctx, service, data)
	if err != nil {
		return app.Result{}, nil, err
	}

	list, err := notifications.List(ctx)
	return res, list, err
}
