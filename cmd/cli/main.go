package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// Small client for CI scripts: submit a coverage sample or run an ad-hoc
// alert check against a running covwatch API.
func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	var (
		coverage = flag.Float64("coverage", -1, "coverage percentage to submit")
		total    = flag.Int("total", 0, "total lines")
		covered  = flag.Int("covered", 0, "covered lines")
		branchCv = flag.Float64("branch-coverage", -1, "branch coverage percentage (optional)")
		suite    = flag.String("suite", "", "test suite name")
		branch   = flag.String("branch", "", "branch name")
		commit   = flag.String("commit", "", "commit hash")
		check    = flag.Float64("check", -1, "run an alert check at this threshold instead of submitting")
	)
	flag.Parse()

	if *check >= 0 {
		checkAlerts(api, *check, *suite, *branch)
		return
	}
	if *coverage < 0 {
		fmt.Fprintln(os.Stderr, "either -coverage or -check is required")
		flag.Usage()
		os.Exit(2)
	}

	payload := map[string]any{
		"coverage_percentage": *coverage,
		"total_lines":         *total,
		"covered_lines":       *covered,
	}
	if *branchCv >= 0 {
		payload["branch_coverage"] = *branchCv
	}
	if *suite != "" {
		payload["test_suite"] = *suite
	}
	if *branch != "" {
		payload["branch_name"] = *branch
	}
	if *commit != "" {
		payload["commit_hash"] = *commit
	}

	body, _ := json.Marshal(payload)
	resp, err := http.Post(api+"/api/coverage", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "API returned %s: %s\n", resp.Status, out)
		os.Exit(1)
	}
	fmt.Printf("%s\n", out)
}

func checkAlerts(api string, threshold float64, suite, branch string) {
	q := url.Values{}
	q.Set("threshold", fmt.Sprintf("%g", threshold))
	if suite != "" {
		q.Set("test_suite", suite)
	}
	if branch != "" {
		q.Set("branch", branch)
	}

	resp, err := http.Get(api + "/api/alerts/check?" + q.Encode())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "API returned %s: %s\n", resp.Status, out)
		os.Exit(1)
	}

	var parsed struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		fmt.Fprintln(os.Stderr, "bad response:", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", out)
	if len(parsed.Alerts) > 0 {
		// non-zero exit so CI pipelines can gate on alerts
		os.Exit(3)
	}
}
