// Command shopctl places and inspects orders from the terminal.
//
//	shopctl quote -file cart.json [-offline]
//	shopctl place -file cart.json
//	shopctl orders
//	shopctl order <id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/pricing"
	"github.com/olekukonko/tablewriter"
)

var errUsage = errors.New("usage: shopctl [-server url] [-token jwt] quote|place|orders|order <id>")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("shopctl", flag.ContinueOnError)
	var (
		server  = fs.String("server", envOr("SHOPCTL_SERVER", "http://localhost:5000"), "order API base URL")
		token   = fs.String("token", os.Getenv("SHOPCTL_TOKEN"), "bearer token")
		timeout = fs.Duration("timeout", 10*time.Second, "request timeout")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	api := newClient(*server, *token, *timeout)

	switch cmd {
	case "quote":
		return quoteCmd(ctx, api, rest, out)
	case "place":
		return placeCmd(ctx, api, rest, out)
	case "orders":
		return ordersCmd(ctx, api, out)
	case "order":
		if len(rest) != 1 {
			return errUsage
		}
		return orderCmd(ctx, api, rest[0], out)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readCart(path string) (*models.OrderDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	var draft models.OrderDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("parse cart %s: %w", path, err)
	}
	return &draft, nil
}

// quoteCmd asks the server to price the cart. When the server cannot be
// reached, or with -offline, it prices locally with the default offer codes,
// which may lag behind codes published to etcd.
func quoteCmd(ctx context.Context, api *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	file := fs.String("file", "cart.json", "cart file")
	offline := fs.Bool("offline", false, "price locally without contacting the server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	draft, err := readCart(*file)
	if err != nil {
		return err
	}

	var q *pricing.Quote
	if !*offline {
		q, err = api.quote(ctx, draft.Items, draft.OfferCode)
		var rejected *responseError
		if errors.As(err, &rejected) {
			return err
		}
		if err != nil {
			fmt.Fprintf(out, "Server unavailable (%v), pricing locally\n", err)
		}
	}
	if q == nil {
		if q, err = localQuote(draft); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Subtotal: %.2f\n", q.Subtotal)
	if q.OfferCode != "" {
		fmt.Fprintf(out, "Discount (%s): -%.2f\n", q.OfferCode, q.Discount)
	}
	fmt.Fprintf(out, "Total: %.2f\n", q.Total)
	return nil
}

func localQuote(draft *models.OrderDraft) (*pricing.Quote, error) {
	registry, err := pricing.RegistryFromConfig(config.DefaultOffers())
	if err != nil {
		return nil, err
	}
	q, err := pricing.NewEngine(registry).Quote(draft.Items, draft.OfferCode)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// placeCmd submits the cart. The cart file is removed only after the server
// accepts the order, so a failed attempt can simply be retried.
func placeCmd(ctx context.Context, api *client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("place", flag.ContinueOnError)
	file := fs.String("file", "cart.json", "cart file")
	keep := fs.Bool("keep", false, "keep the cart file after a successful order")
	if err := fs.Parse(args); err != nil {
		return err
	}

	draft, err := readCart(*file)
	if err != nil {
		return err
	}

	order, err := api.placeOrder(ctx, draft)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	fmt.Fprintf(out, "Order %s placed, total %.2f\n", order.OrderNumber, order.Total)
	if !*keep {
		if err := os.Remove(*file); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}
	return nil
}

func ordersCmd(ctx context.Context, api *client, out io.Writer) error {
	orders, err := api.myOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(out, "No orders yet")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Order", "Placed", "Items", "Total", "Status", "Payment")
	for _, o := range orders {
		if err := table.Append([]string{
			o.OrderNumber,
			o.CreatedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(len(o.Items)),
			fmt.Sprintf("%.2f", o.Total),
			string(o.OrderStatus),
			string(o.PaymentStatus),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func orderCmd(ctx context.Context, api *client, id string, out io.Writer) error {
	o, err := api.order(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Order %s (%s)\n", o.OrderNumber, o.ID.Hex())
	fmt.Fprintf(out, "Status: %s, payment %s via %s\n", o.OrderStatus, o.PaymentStatus, o.PaymentMethod)
	fmt.Fprintf(out, "Ship to: %s, %s, %s %s\n", o.ShippingAddress.Street, o.ShippingAddress.City,
		o.ShippingAddress.State, o.ShippingAddress.ZipCode)

	table := tablewriter.NewWriter(out)
	table.Header("Item", "Qty", "Price", "Line")
	for _, item := range o.Items {
		name := item.Name
		if item.ProductInfo != nil && item.ProductInfo.Name != "" {
			name = item.ProductInfo.Name
		}
		if err := table.Append([]string{
			name,
			strconv.Itoa(item.Quantity),
			fmt.Sprintf("%.2f", item.Price),
			fmt.Sprintf("%.2f", item.Price*float64(item.Quantity)),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Subtotal: %.2f\n", o.Subtotal)
	if o.OfferCode != "" {
		fmt.Fprintf(out, "Discount (%s): -%.2f\n", o.OfferCode, o.Discount)
	}
	fmt.Fprintf(out, "Total: %.2f\n", o.Total)
	return nil
}
