package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pingdaily/ping-daily-web/internal"
	"github.com/pingdaily/ping-daily-web/internal/config"
	"github.com/pingdaily/ping-daily-web/internal/envutil"
	"github.com/pingdaily/ping-daily-web/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.Version,
		"app": map[string]any{
			"baseURL":        "https://standup.yourcompany.com",
			"addr":           ":8080",
			"name":           "ping-daily",
			"allowedOrigins": []string{"https://standup.yourcompany.com"},
		},
		"auth": map[string]any{
			"clientId":       map[string]string{"$env": "SLACK_CLIENT_ID"},
			"clientSecret":   map[string]string{"$env": "SLACK_CLIENT_SECRET"},
			"redirectUri":    "https://standup.yourcompany.com/oauth/callback",
			"scopes":         []string{"openid", "profile", "email", "channels:read", "groups:read", "mpim:read"},
			"allowedDomains": []string{"yourcompany.com"},
			"cookieSecret":   map[string]string{"$env": "COOKIE_SECRET"},
			"encryptionKey":  map[string]string{"$env": "ENCRYPTION_KEY"},
			"sessionTtl":     "24h",
			"idToken": map[string]any{
				"verify": true,
			},
		},
		"storage": map[string]any{
			"kind":     "redis",
			"redisUrl": map[string]string{"$env": "REDIS_URL"},
		},
		"backend": map[string]any{
			"baseURL": "https://api.standup.yourcompany.com",
			"timeout": "30s",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: PASS (with warnings)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	rt, err := envutil.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := log.Configure(rt.LogLevel, rt.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting ping-daily-web", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
		"env":     rt.Env,
	})

	dashboard, err := internal.NewDashboard(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to create dashboard: %v", err)
		os.Exit(1)
	}

	if err := dashboard.Run(); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
