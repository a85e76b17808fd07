// Command trigger asks a running pickgen service to run one workflow step.
//
//	trigger ingestion [DAYS]
//	trigger generation
//	trigger emergency
//	trigger generate GAME_ID [AGENT_ID]
//	trigger state GAME_ID [AGENT_ID]
//	trigger failures [AGENT_ID]
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const defaultURL = "http://localhost:8080"

type request struct {
	method string
	path   string
	body   any
}

func main() {
	base := os.Getenv("PICKGEN_URL")
	if base == "" {
		base = defaultURL
	}

	req, err := buildRequest(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	status, body, err := send(base, req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	fmt.Printf("Status: %d\n%s\n", status, body)
	if status >= 300 {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: trigger <ingestion [DAYS]|generation|emergency|generate GAME [AGENT]|state GAME [AGENT]|failures [AGENT]>")
}

func buildRequest(args []string) (request, error) {
	if len(args) == 0 {
		return request{}, fmt.Errorf("missing command")
	}
	switch args[0] {
	case "ingestion":
		r := request{method: http.MethodPost, path: "/v1/triggers/ingestion"}
		if len(args) > 1 {
			days, err := strconv.Atoi(args[1])
			if err != nil || days <= 0 {
				return request{}, fmt.Errorf("invalid days %q", args[1])
			}
			r.body = map[string]int{"horizon_days": days}
		}
		return r, nil
	case "generation":
		return request{method: http.MethodPost, path: "/v1/triggers/generation"}, nil
	case "emergency":
		return request{method: http.MethodPost, path: "/v1/triggers/emergency"}, nil
	case "generate", "state":
		if len(args) < 2 {
			return request{}, fmt.Errorf("%s needs a game id", args[0])
		}
		r := request{path: "/v1/games/" + url.PathEscape(args[1])}
		if args[0] == "generate" {
			r.method, r.path = http.MethodPost, r.path+"/generate"
			if len(args) > 2 {
				r.body = map[string]string{"agent_id": args[2]}
			}
			return r, nil
		}
		r.method, r.path = http.MethodGet, r.path+"/state"
		if len(args) > 2 {
			r.path += "?agent_id=" + url.QueryEscape(args[2])
		}
		return r, nil
	case "failures":
		r := request{method: http.MethodGet, path: "/v1/failures"}
		if len(args) > 1 {
			r.path += "?agent_id=" + url.QueryEscape(args[1])
		}
		return r, nil
	}
	return request{}, fmt.Errorf("unknown command %q", args[0])
}

func send(base string, r request) (int, string, error) {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return 0, "", fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(r.method, base+r.path, body)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Generation runs synchronously on the server and may take minutes.
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(out), nil
}
