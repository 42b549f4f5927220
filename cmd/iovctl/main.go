package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"iovid/sdk/go/iov"
)

const usage = "usage: iovctl identity create --name <name> --type <type> | iovctl request send --requester <did> --requester-type <type> --owner <did> --data-type <type> --reason <text> [--emergency] | iovctl wallet show --did <did>"

func main() {
	if len(os.Args) < 3 {
		fail(usage)
	}
	switch os.Args[1] + " " + os.Args[2] {
	case "identity create":
		runIdentityCreate(os.Args[3:])
	case "request send":
		runRequestSend(os.Args[3:])
	case "wallet show":
		runWalletShow(os.Args[3:])
	default:
		fail(usage)
	}
}

func runIdentityCreate(args []string) {
	fs := flag.NewFlagSet("identity create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	baseURL := fs.String("url", envOr("IOV_URL", "http://localhost:8084"), "service base url")
	name := fs.String("name", "", "identity display name")
	typ := fs.String("type", "person", "entity type")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if *name == "" {
		fail("identity create: --name is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	id, err := iov.NewClient(*baseURL).CreateIdentity(ctx, *name, *typ)
	if err != nil {
		fail(err.Error())
	}
	printJSON(id)
}

func runRequestSend(args []string) {
	fs := flag.NewFlagSet("request send", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	baseURL := fs.String("url", envOr("IOV_URL", "http://localhost:8084"), "service base url")
	requester := fs.String("requester", "", "requester entity DID")
	requesterType := fs.String("requester-type", "", "requester entity type")
	owner := fs.String("owner", "", "data owner entity DID")
	dataType := fs.String("data-type", "", "requested data type")
	reason := fs.String("reason", "", "reason for the request")
	emergency := fs.Bool("emergency", false, "mark the request as an emergency")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if *requester == "" || *owner == "" || *dataType == "" {
		fail("request send: --requester, --owner and --data-type are required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	requestID, outcome, err := iov.NewClient(*baseURL).RequestData(ctx, iov.DataRequest{
		RequesterDID:  *requester,
		RequesterType: *requesterType,
		OwnerDID:      *owner,
		DataType:      *dataType,
		Reason:        *reason,
		IsEmergency:   *emergency,
	})
	if err != nil {
		fail(err.Error())
	}
	printJSON(map[string]any{"request_id": requestID, "outcome": outcome})
}

func runWalletShow(args []string) {
	fs := flag.NewFlagSet("wallet show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	baseURL := fs.String("url", envOr("IOV_URL", "http://localhost:8084"), "service base url")
	did := fs.String("did", "", "wallet owner entity DID")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if *did == "" {
		fail("wallet show: --did is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	wl, err := iov.NewClient(*baseURL).Wallet(ctx, *did)
	if err != nil {
		fail(err.Error())
	}
	printJSON(wl)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
