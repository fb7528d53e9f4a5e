// modctl drives the moderation service from the command line: accepting,
// rejecting and previewing contributions against a running instance.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const usage = "usage: modctl contribution (accept|reject|preview) --id <uuid> [--verify] [--ignore <field>]... [--comment <text>]"

type repeatStringFlag []string

func (r *repeatStringFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatStringFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	*r = append(*r, v)
	return nil
}

func main() {
	if len(os.Args) < 3 || os.Args[1] != "contribution" {
		fail(usage)
	}
	switch os.Args[2] {
	case "accept":
		runDecision(os.Args[3:], "accept")
	case "preview":
		runDecision(os.Args[3:], "preview")
	case "reject":
		runReject(os.Args[3:])
	default:
		fail(usage)
	}
}

func runDecision(args []string, action string) {
	fs := flag.NewFlagSet("contribution "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "contribution id")
	verify := fs.Bool("verify", false, "assert the edit as ground truth, skipping the trust downgrade")
	comment := fs.String("comment", "", "moderation comment")
	var ignore repeatStringFlag
	fs.Var(&ignore, "ignore", "field to discard before applying (repeatable)")
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
	if strings.TrimSpace(*id) == "" {
		fail("--id is required")
	}

	body := map[string]any{"verify": *verify, "ignored_fields": []string(ignore)}
	if action == "accept" && *comment != "" {
		body["comment"] = *comment
	}
	post(fmt.Sprintf("/v1/contributions/%s/%s", *id, action), body)
}

func runReject(args []string) {
	fs := flag.NewFlagSet("contribution reject", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "contribution id")
	comment := fs.String("comment", "", "moderation comment")
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
	if strings.TrimSpace(*id) == "" {
		fail("--id is required")
	}

	body := map[string]any{}
	if *comment != "" {
		body["comment"] = *comment
	}
	post(fmt.Sprintf("/v1/contributions/%s/reject", *id), body)
}

func post(path string, body map[string]any) {
	base := os.Getenv("MODERATION_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	token := os.Getenv("MODERATION_TOKEN")
	if token == "" {
		fail("MODERATION_TOKEN is required")
	}

	b, err := json.Marshal(body)
	if err != nil {
		fail(err.Error())
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(base, "/")+path, bytes.NewReader(b))
	if err != nil {
		fail(err.Error())
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err.Error())
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(out)))
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
