package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// EnvFileEnvVarName points to the environment file loaded before any flag is declared.
const EnvFileEnvVarName = "GEOINGEST_ENV_FILE"

const defaultEnvFile = ".env"

func init() {
	// Flag defaults are read from the environment when the commands
	// declare their flag sets, so the file has to be loaded first.
	// The loggers are configured by flags, so there is no logger yet.
	if err := LoadEnvFile(os.Getenv(EnvFileEnvVarName)); err != nil {
		fmt.Fprintf(os.Stderr, "failed loading environment file: %v\n", err)
	}
}

// LoadEnvFile loads the environment file, if it exists.
// Variables already present in the process environment are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		path = defaultEnvFile
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !stat.Mode().IsRegular() {
		return fmt.Errorf("environment file %s is not a regular file", path)
	}
	return gotenv.Load(path)
}

func envString(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		// any non-empty value which is not a boolean enables the flag, like DEBUG=yes
		return true
	}
	return parsed
}

// envSeconds reads a duration given as a number of seconds.
func envSeconds(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func envInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func envList(key string) []string {
	result := []string{}
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
