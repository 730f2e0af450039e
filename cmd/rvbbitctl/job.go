package main

import (
	"fmt"
	"io"
	"net/http"
)

func runJobLookup(apiURL, jobID string, out io.Writer) error {
	resp, err := http.Get(apiURL + "/jobs/" + jobID)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func runHealthCheck(apiURL string, out io.Writer) error {
	resp, err := http.Get(apiURL + "/health")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, err = io.Copy(out, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return err
}
