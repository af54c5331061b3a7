package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// refreshTokenEnv is read when no --refresh-token flag is given.
const refreshTokenEnv = "LEADSCORE_REFRESH_TOKEN"

func refreshToken(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(refreshTokenEnv); v != "" {
		return v, nil
	}
	return "", eris.Errorf("--refresh-token or %s is required", refreshTokenEnv)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
