/*
Package schema defines the service schema document of the Mosenergosbyt
integration.

The document declares, for each service the integration exposes, which
entities a call may target and which fields the caller must or may supply.
It is loaded once (or on reload) and never mutated afterwards.

# Document Format

A service definition in YAML:

	push_indications:
	  description: Submit meter readings
	  target:
	    entity:
	      device_class: meter
	  fields:
	    indications:
	      description: Readings per tariff
	      required: true
	      example: "[123, 456, 789]"
	      selector:
	        text:
	          multiline: false
	    incremental:
	      description: Add to the last known readings
	      default: false
	      selector:
	        boolean:

Services and fields keep their declaration order.

# Selectors

Supported selectors:

  - text:    Free text input (option: multiline)
  - boolean: On/off toggle

# Parsing

	doc, err := schema.ParseFile("services.yaml")
	doc := schema.Builtin()

Every parsed document is validated. Invalid documents return an error that
lists all problems found.
*/
package schema
