// cmd/tools/intent-registry/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shopbot-core/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	// Add command flags
	idAdd := addCmd.String("id", "", "Intent ID (e.g., product_search)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Product Search)")
	description := addCmd.String("description", "", "Description")
	entities := addCmd.String("entities", "", "Comma-separated required entities (e.g., budget,category)")
	tags := addCmd.String("tags", "", "Comma-separated tags")
	addCmd.StringVar(&registryPath, "path", "configs/intent-registry.json", "Path to registry file")

	validateCmd.StringVar(&registryPath, "path", "configs/intent-registry.json", "Path to registry file")
	exportCmd.StringVar(&registryPath, "path", "configs/intent-registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *description == "" {
			fmt.Println("Error: id, displayName, and description are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		intent := registry.Intent{
			ID:               *idAdd,
			DisplayName:      *displayName,
			Description:      *description,
			RequiredEntities: splitList(*entities),
			ResponseSchema:   registry.Default().Intent("unknown").ResponseSchema,
			Tags:             splitList(*tags),
		}
		if err := addIntent(&intent); err != nil {
			fmt.Printf("Error adding intent: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added intent: %s\n", *idAdd)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "export":
		// Writes the built-in manifest to disk as a starting point.
		exportCmd.Parse(os.Args[2:])
		if err := saveRegistry(registry.Default(), registryPath); err != nil {
			fmt.Printf("Error exporting registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported built-in manifest to %s\n", registryPath)

	case "help":
		fallthrough
	default:
		help()
	}
}

func addIntent(intent *registry.Intent) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			reg = &registry.IntentRegistry{Version: "1.0"}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	if reg.Intent(intent.ID) != nil {
		return fmt.Errorf("intent with ID %s already exists", intent.ID)
	}

	reg.Intents = append(reg.Intents, *intent)
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	return saveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Intents) == 0 {
		return fmt.Errorf("registry contains no intents")
	}

	ids := make(map[string]bool)
	for _, intent := range reg.Intents {
		if intent.ID == "" {
			return fmt.Errorf("intent missing required field: ID")
		}
		if ids[intent.ID] {
			return fmt.Errorf("duplicate intent ID: %s", intent.ID)
		}
		ids[intent.ID] = true

		if intent.DisplayName == "" {
			return fmt.Errorf("intent %s missing displayName", intent.ID)
		}
	}

	// Schemas must compile, not just parse.
	if _, err := registry.Compile(reg); err != nil {
		return err
	}

	return nil
}

func saveRegistry(reg *registry.IntentRegistry, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func help() {
	fmt.Println(`intent-registry manages the intent manifest.

Usage:
  intent-registry add -id <id> -displayName <name> -description <text> [-entities a,b] [-tags x,y] [-path file]
  intent-registry validate [-path file]
  intent-registry export [-path file]`)
}
