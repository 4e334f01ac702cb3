// Command validate checks relay configuration files. For each INI file given on
// the command line (default ../sws_http_config.ini) it checks:
//   - INI syntax and the [http] and [obsws] sections
//   - Unknown keys, which are ignored by the relay and usually typos
//   - Value ranges, through the relay's own loader
//   - That static_dir exists
//   - With -connect: that obs-websocket answers GetVersion with the configured credentials
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/obs-http-relay/relay/config"
	"github.com/wricardo/obs-http-relay/relay/obsws"
	"gopkg.in/ini.v1"
)

// knownKeys lists the keys the relay reads, per section.
var knownKeys = map[string][]string{
	"http":  {"bind_to_address", "bind_to_port", "authentication_key", "static_dir"},
	"obsws": {"ws_address", "ws_port", "ws_password", "request_timeout"},
}

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfig loads and validates a single configuration file.
func validateConfig(filePath string) (ValidationResult, *config.Config) {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result, nil
	}

	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid INI: %v", err))
		return result, nil
	}

	// Validate sections and keys
	for name, keys := range knownKeys {
		if !file.HasSection(name) {
			result.Errors = append(result.Errors, fmt.Sprintf("Note: no [%s] section, defaults apply", name))
			continue
		}
		for _, key := range file.Section(name).Keys() {
			if !contains(keys, key.Name()) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("Unknown key %q in [%s]", key.Name(), name))
			}
		}
	}
	for _, name := range file.SectionStrings() {
		if _, ok := knownKeys[name]; !ok && name != ini.DefaultSection {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Unknown section [%s]", name))
		}
	}

	cfg, err := config.Parse(data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	cfg.ResolveStaticDir(filepath.Dir(filePath))
	if dir := cfg.HTTP.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("static_dir %q is not a directory", dir))
		}
	}

	if result.Valid {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ HTTP: %s", cfg.Addr()))
		if cfg.HTTP.AuthKey == "" {
			result.Errors = append(result.Errors, "✓ Auth: disabled (any client can control OBS)")
		} else {
			result.Errors = append(result.Errors, "✓ Auth: AuthKey required")
		}
		result.Errors = append(result.Errors, fmt.Sprintf("✓ obs-websocket: %s:%d (timeout %s)", cfg.Upstream.Host, cfg.Upstream.Port, cfg.Upstream.Timeout))
	}

	return result, cfg
}

// validateConnectivity connects to obs-websocket with cfg's credentials and
// sends GetVersion.
func validateConnectivity(ctx context.Context, cfg *config.Config) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	client := obsws.NewClient(cfg.Upstream.Host, cfg.Upstream.Port, cfg.Upstream.Password, obsws.WithTimeout(cfg.Upstream.Timeout))
	if err := client.Connect(ctx); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Connectivity failure: %v", err))
		return result
	}
	defer client.Disconnect()

	resp, err := client.Call(ctx, "GetVersion", nil)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("GetVersion failed: %v", err))
		return result
	}

	var version string
	obsws.Field(resp, "obs-websocket-version", &version)
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Connectivity: obs-websocket %s at %s", version, client.Address()))
	return result
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// main validates each file given on the command line, printing a concise
// report and exiting with non-zero status if any are invalid.
func main() {
	connect := flag.Bool("connect", false, "Also connect to obs-websocket")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		files = []string{filepath.Join("..", config.DefaultFile)}
	}

	allValid := true
	for _, file := range files {
		result, cfg := validateConfig(file)
		if *connect && result.Valid {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			conn := validateConnectivity(ctx, cfg)
			cancel()
			result.Valid = conn.Valid
			result.Errors = append(result.Errors, conn.Errors...)
		}

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
