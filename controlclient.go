package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// controlClientTimeout bounds how long a CLI subcommand waits on the
// daemon's control API before giving up.
const controlClientTimeout = 10 * time.Second

// controlHTTPClient is shared across the status/conflicts/resolve/pin/
// pause/resume subcommands, each of which is a short-lived HTTP client
// against the running daemon's loopback control server rather than a
// second SQLite connection against the live state database.
var controlHTTPClient = &http.Client{Timeout: controlClientTimeout}

// controlGet performs a GET against the control API at addr+path and
// decodes the JSON response into out.
func controlGet(addr, path string, out any) error {
	resp, err := controlHTTPClient.Get("http://" + addr + path)
	if err != nil {
		return fmt.Errorf("contacting orchard daemon at %s: %w (is it running?)", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return controlErrorFromResponse(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// controlPost performs a POST against the control API at addr+path with no
// body, expecting 204 No Content on success.
func controlPost(addr, path string) error {
	resp, err := controlHTTPClient.Post("http://"+addr+path, "application/octet-stream", nil)
	if err != nil {
		return fmt.Errorf("contacting orchard daemon at %s: %w (is it running?)", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return controlErrorFromResponse(resp)
	}

	return nil
}

func controlErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("daemon returned %s: %s", resp.Status, string(body))
}
