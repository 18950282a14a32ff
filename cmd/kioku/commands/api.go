package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// defaultServerURL is where commands look for a running server. Using the
// HTTP API avoids bleve/sqlite lock conflicts with the server process.
const defaultServerURL = "http://localhost:8080"

// callJSON performs one API request and decodes a 200 response into out.
// Non-200 responses become errors carrying the body text. out may be nil.
func callJSON(method, url string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func postJSON(url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return callJSON(http.MethodPost, url, bytes.NewReader(body), out)
}

func getJSON(url string, out interface{}) error {
	return callJSON(http.MethodGet, url, nil, out)
}
