/*
main.go - Command-line client for the budget engine

PURPOSE:
  Drives the optimistic mutation coordinator against a running
  persistence service. Every write goes through the full
  validate/project/dispatch/confirm cycle, so this doubles as an
  end-to-end exercise of the client stack.

COMMANDS:
  list                                  List line items
  show -item <id>                       Show one aggregate with totals
  create-item -name ... -category ...   Create a line item
  delete-item -item <id>                Delete a line item
  create-request -item <id> -amount ... Open a purchase request
  approve -item <id> -request <id>      Approve a request
  reject  -item <id> -request <id> -reason ...
  reopen  -item <id> -request <id>      Return a request to Pending
  record  -item <id> [-request <id>] -amount ...
                                        Record a transaction
ENVIRONMENT:
  REMOTE_BASE_URL      Service base URL (default: http://localhost:8080)
  REMOTE_WRITE_TIMEOUT Per-write deadline (default: 10s)

EXAMPLES:
  budgetctl create-item -name "Cloud hosting" -category expense -amount 120.00
  budgetctl approve -item 4f0c... -request 9a1e... -actor finance
  budgetctl show -item 4f0c...
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gracepoint/budget-engine/approval"
	"github.com/gracepoint/budget-engine/config"
	"github.com/gracepoint/budget-engine/coordinator"
	"github.com/gracepoint/budget-engine/ledger"
	"github.com/gracepoint/budget-engine/logging"
	"github.com/gracepoint/budget-engine/remote"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	client := remote.NewClient(cfg.Client.BaseURL, cfg.Client.WriteTimeout)
	coord := coordinator.New(client, coordinator.Options{
		WriteTimeout: cfg.Client.WriteTimeout,
		Log:          log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "list":
		err = runList(ctx, client)
	case "show":
		err = runShow(ctx, coord, args)
	case "create-item":
		err = runCreateItem(ctx, coord, args)
	case "delete-item":
		err = runDeleteItem(ctx, coord, args)
	case "create-request":
		err = runCreateRequest(ctx, coord, args)
	case "approve":
		err = runDecision(ctx, coord, args, ledger.StatusApproved)
	case "reject":
		err = runDecision(ctx, coord, args, ledger.StatusRejected)
	case "reopen":
		err = runDecision(ctx, coord, args, ledger.StatusPending)
	case "record":
		err = runRecord(ctx, coord, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: budgetctl <list|show|create-item|delete-item|create-request|approve|reject|reopen|record> [flags]")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "budgetctl:", err)
	os.Exit(1)
}

func runList(ctx context.Context, client *remote.Client) error {
	items, err := client.ListLineItems(ctx)
	if err != nil {
		return err
	}
	for _, li := range items {
		fmt.Printf("%s  %-10s %-30s estimated %s\n", li.ID, li.Category, li.Name, li.Estimated)
	}
	return nil
}

func runShow(ctx context.Context, coord *coordinator.Coordinator, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	item := fs.String("item", "", "line item id")
	fs.Parse(args)

	id := ledger.LineItemID(*item)
	if err := coord.Refresh(ctx, id); err != nil {
		return err
	}
	agg, t, ok := coord.State().Get(id)
	if !ok {
		return fmt.Errorf("line item %s not found", id)
	}
	fmt.Printf("%s (%s)\n", agg.LineItem.Name, agg.LineItem.Category)
	fmt.Printf("  estimated %s  actual %s  variance %s\n", agg.LineItem.Estimated, t.Actual, t.Variance)
	for _, pr := range agg.Requests {
		fmt.Printf("  request %s  %-8s %s  remaining %s  %s\n", pr.ID, pr.Status, pr.Amount, t.Remaining[pr.ID], pr.Description)
	}
	for _, tx := range agg.Transactions {
		fmt.Printf("  tx %s  %s  %s\n", tx.ID, tx.Amount, tx.Description)
	}
	return nil
}

func runCreateItem(ctx context.Context, coord *coordinator.Coordinator, args []string) error {
	fs := flag.NewFlagSet("create-item", flag.ExitOnError)
	name := fs.String("name", "", "line item name")
	desc := fs.String("description", "", "description")
	vendor := fs.String("vendor", "", "vendor")
	category := fs.String("category", "expense", "expense or revenue")
	amount := fs.String("amount", "0", "estimated amount, e.g. 120.50")
	fs.Parse(args)

	est, err := ledger.ParseAmount(*amount)
	if err != nil {
		return err
	}
	id, err := coord.CreateLineItem(ctx, coordinator.LineItemIntent{
		Name:        *name,
		Description: *desc,
		Vendor:      *vendor,
		Category:    ledger.CategoryType(*category),
		Estimated:   est,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runDeleteItem(ctx context.Context, coord *coordinator.Coordinator, args []string) error {
	fs := flag.NewFlagSet("delete-item", flag.ExitOnError)
	item := fs.String("item", "", "line item id")
	fs.Parse(args)

	id := ledger.LineItemID(*item)
	if err := coord.Refresh(ctx, id); err != nil {
		return err
	}
	return coord.DeleteLineItem(ctx, id)
}

func runCreateRequest(ctx context.Context, coord *coordinator.Coordinator, args []string) error {
	fs := flag.NewFlagSet("create-request", flag.ExitOnError)
	item := fs.String("item", "", "line item id")
	desc := fs.String("description", "", "description")
	vendor := fs.String("vendor", "", "vendor")
	amount := fs.String("amount", "", "requested ceiling, e.g. 500.00")
	by := fs.String("by", "", "requester")
	fs.Parse(args)

	amt, err := ledger.ParseAmount(*amount)
	if err != nil {
		return err
	}
	id := ledger.LineItemID(*item)
	if err := coord.Refresh(ctx, id); err != nil {
		return err
	}
	prID, err := coord.CreatePurchaseRequest(ctx, coordinator.RequestIntent{
		LineItemID:    id,
		Description:   *desc,
		Vendor:        *vendor,
		Amount:        amt,
		RequestedDate: time.Now(),
		RequestedBy:   *by,
	})
	if err != nil {
		return err
	}
	fmt.Println(prID)
	return nil
}

func runDecision(ctx context.Context, coord *coordinator.Coordinator, args []string, to ledger.ApprovalStatus) error {
	fs := flag.NewFlagSet("decision", flag.ExitOnError)
	item := fs.String("item", "", "line item id")
	request := fs.String("request", "", "purchase request id")
	actor := fs.String("actor", "", "deciding actor")
	reason := fs.String("reason", "", "rejection reason")
	fs.Parse(args)

	id := ledger.LineItemID(*item)
	if err := coord.Refresh(ctx, id); err != nil {
		return err
	}
	return coord.TransitionPurchaseRequest(ctx, id, ledger.PurchaseRequestID(*request), approval.Decision{
		To:     to,
		Actor:  *actor,
		Reason: *reason,
		Now:    time.Now(),
	})
}

func runRecord(ctx context.Context, coord *coordinator.Coordinator, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	item := fs.String("item", "", "line item id")
	request := fs.String("request", "", "purchase request id (omit for revenue)")
	desc := fs.String("description", "", "description")
	amount := fs.String("amount", "", "amount, e.g. 42.99")
	method := fs.String("method", "", "payment method")
	fs.Parse(args)

	amt, err := ledger.ParseAmount(*amount)
	if err != nil {
		return err
	}
	id := ledger.LineItemID(*item)
	if err := coord.Refresh(ctx, id); err != nil {
		return err
	}
	txID, err := coord.CreateTransaction(ctx, coordinator.TransactionIntent{
		LineItemID:        id,
		PurchaseRequestID: ledger.PurchaseRequestID(*request),
		Description:       *desc,
		Amount:            amt,
		Date:              time.Now(),
		Method:            ledger.PaymentMethod(*method),
	})
	if err != nil {
		return err
	}
	fmt.Println(txID)
	return nil
}
