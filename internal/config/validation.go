package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if !strings.HasPrefix(version, Version) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, Version, Version)
	}

	validateAppStructure(rawConfig, result)
	storageKind := validateStorageStructure(rawConfig, result)
	validateAuthStructure(rawConfig, storageKind, result)
	validateBackendStructure(rawConfig, result)

	return result, nil
}

func validateAppStructure(rawConfig map[string]any, result *ValidationResult) {
	app, ok := rawConfig["app"].(map[string]any)
	if !ok {
		result.addError("app", "app field is required and must be an object")
		return
	}
	if _, ok := app["baseURL"]; !ok {
		result.addError("app.baseURL", "baseURL is required. Example: \"https://standup.example.com\"")
	}
	if _, ok := app["addr"]; !ok {
		result.addError("app.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if origins, ok := app["allowedOrigins"]; ok {
		if _, isList := origins.([]any); !isList {
			result.addError("app.allowedOrigins", "allowedOrigins must be an array of origins")
		}
	}
}

func validateAuthStructure(rawConfig map[string]any, storageKind string, result *ValidationResult) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		result.addError("auth", "auth field is required and must be an object")
		return
	}

	if _, ok := auth["clientId"]; !ok {
		result.addWarning("auth.clientId", "clientId is not set. Users will see \"Please configure the Slack Client ID\" when signing in")
	} else if _, ok := auth["clientSecret"]; !ok {
		result.addError("auth.clientSecret", "clientSecret is required when clientId is set")
	}

	if v, ok := auth["clientSecret"]; ok {
		if err := validateEnvVarReference(v, "clientSecret", "auth.clientSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}

	if v, ok := auth["cookieSecret"]; ok {
		if err := validateEnvVarReference(v, "cookieSecret", "auth.cookieSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else {
		result.addError("auth.cookieSecret", "cookieSecret is required. Generate with: openssl rand -base64 32")
	}

	if v, ok := auth["encryptionKey"]; ok {
		if err := validateEnvVarReference(v, "encryptionKey", "auth.encryptionKey"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else if storageKind != StorageMemory {
		result.addError("auth.encryptionKey", "encryptionKey is required when using %s storage", storageKind)
	}

	if scopes, ok := auth["scopes"]; ok {
		list, isList := scopes.([]any)
		switch {
		case !isList:
			result.addError("auth.scopes", "scopes must be an array")
		case len(list) == 0:
			result.addError("auth.scopes", "at least one scope is required when scopes is set")
		case !containsString(list, "openid"):
			result.addWarning("auth.scopes", "scopes do not include \"openid\"; the provider will not return an identity token")
		}
	}

	validateDurationPair(auth, result)

	if idt, ok := auth["idToken"].(map[string]any); ok {
		if verify, _ := idt["verify"].(bool); !verify {
			result.addWarning("auth.idToken.verify", "identity tokens are decoded without signature verification")
		}
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) string {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return StorageMemory
	}

	kind, _ := storage["kind"].(string)
	switch kind {
	case "", StorageMemory:
		return StorageMemory
	case StorageRedis:
		if v, ok := storage["redisUrl"]; ok {
			if err := validateEnvVarReference(v, "redisUrl", "storage.redisUrl"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		} else {
			result.addError("storage.redisUrl", "redisUrl is required when using redis storage")
		}
	case StorageFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "invalid storage kind '%s' - must be 'memory', 'redis' or 'firestore'", kind)
	}
	return kind
}

func validateBackendStructure(rawConfig map[string]any, result *ValidationResult) {
	backend, ok := rawConfig["backend"].(map[string]any)
	if !ok {
		result.addWarning("backend", "backend is not configured; /api/backend requests will return 404")
		return
	}
	if t, ok := backend["timeout"].(string); ok {
		if _, err := time.ParseDuration(t); err != nil {
			result.addError("backend.timeout", "invalid duration '%s'. Example: \"30s\"", t)
		}
	}
}

// validateDurationPair checks sessionTtl and cleanupInterval
func validateDurationPair(auth map[string]any, result *ValidationResult) {
	ttlStr, hasTTL := auth["sessionTtl"].(string)
	cleanupStr, hasCleanup := auth["cleanupInterval"].(string)

	var ttl, cleanup time.Duration
	var err error
	if hasTTL {
		if ttl, err = time.ParseDuration(ttlStr); err != nil {
			result.addError("auth.sessionTtl", "invalid duration '%s'. Example: \"24h\"", ttlStr)
			return
		}
	}
	if hasCleanup {
		if cleanup, err = time.ParseDuration(cleanupStr); err != nil {
			result.addError("auth.cleanupInterval", "invalid duration '%s'. Example: \"10m\"", cleanupStr)
			return
		}
	}
	if hasTTL && hasCleanup && cleanup > ttl {
		result.addWarning("auth",
			"cleanupInterval (%s) is longer than sessionTtl (%s). Expired contexts will remain in storage until cleanup runs.",
			cleanupStr, ttlStr)
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path,
				"found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing",
				match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

func containsString(list []any, want string) bool {
	for _, item := range list {
		if s, ok := item.(string); ok && s == want {
			return true
		}
	}
	return false
}
