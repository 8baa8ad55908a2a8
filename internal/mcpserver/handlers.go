package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/homeescrow/internal/escrow"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleGetTransaction shows one transaction.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	tx, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return failure("Failed to get transaction", err), nil
	}
	return mcp.NewToolResultText(formatTransaction(tx)), nil
}

// HandleListTransactions lists the caller's transactions.
func (h *Handlers) HandleListTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.client.ListTransactions(ctx, ListFilter{
		Status: req.GetString("status", ""),
		Role:   req.GetString("role", ""),
		Page:   req.GetInt("page", 1),
		Limit:  req.GetInt("limit", 20),
	})
	if err != nil {
		return failure("Failed to list transactions", err), nil
	}
	if len(res.Items) == 0 {
		return mcp.NewToolResultText("No transactions found."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing %d of %d transaction(s), page %d of %d:\n\n", len(res.Items), res.Total, res.Page, res.Pages)
	for i, tx := range res.Items {
		fmt.Fprintf(&sb, "%d. %s  %s\n", i+1, tx.Reference, tx.Property.Title)
		fmt.Fprintf(&sb, "   ID: %s | Status: %s | Amount: %s %s\n", tx.ID, tx.Status, tx.Amount.StringFixed(2), tx.Currency)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleUpdateStatus moves a transaction along the status graph.
func (h *Handlers) HandleUpdateStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}
	status := req.GetString("status", "")
	if status == "" {
		return mcp.NewToolResultError("status is required"), nil
	}

	tx, err := h.client.UpdateStatus(ctx, id, status, req.GetString("notes", ""))
	if err != nil {
		return failure("Status change failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Transaction %s is now %s.\n\n%s", tx.Reference, tx.Status, formatTransaction(tx))), nil
}

// HandleFileDispute opens a dispute.
func (h *Handlers) HandleFileDispute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	tx, err := h.client.FileDispute(ctx, id, reason, req.GetString("description", ""))
	if err != nil {
		return failure("Dispute failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Dispute filed on %s.\n"+
			"Reason: %s\n"+
			"Status: %s. An administrator will review it and rule.",
		tx.Reference, reason, tx.Status)), nil
}

// HandleGetTimeline shows the audit trail.
func (h *Handlers) HandleGetTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	tl, err := h.client.GetTimeline(ctx, id)
	if err != nil {
		return failure("Failed to get timeline", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status path: %s\n\n", joinStatuses(tl.Statuses, " -> "))
	for _, ev := range tl.Events {
		fmt.Fprintf(&sb, "%s  %-18s %s", ev.Timestamp.UTC().Format(time.RFC3339), ev.Type, ev.Description)
		if ev.PerformedBy != "" {
			fmt.Fprintf(&sb, " (by %s)", ev.PerformedBy)
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetStatistics shows platform statistics.
func (h *Handlers) HandleGetStatistics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.client.GetStatistics(ctx)
	if err != nil {
		return failure("Failed to get statistics", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total transactions: %d\n\nBy status:\n", stats.Total)
	statuses := make([]string, 0, len(stats.ByStatus))
	for st := range stats.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(&sb, "  %-10s %d\n", st, stats.ByStatus[escrow.Status(st)])
	}
	if len(stats.Monthly) > 0 {
		sb.WriteString("\nMonthly:\n")
		for _, m := range stats.Monthly {
			fmt.Fprintf(&sb, "  %s  %d txns  volume %s  fees %s\n", m.Month, m.Count, m.Volume.StringFixed(2), m.Fees.StringFixed(2))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func failure(prefix string, err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %v", prefix, err)
	var apiErr *APIError
	if errors.As(err, &apiErr) && len(apiErr.Allowed) > 0 {
		msg += "\nAllowed next statuses: " + joinStatuses(apiErr.Allowed, ", ")
	}
	return mcp.NewToolResultError(msg)
}

func formatTransaction(tx *escrow.Transaction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Escrow %s (%s)\n", tx.Reference, tx.ID)
	fmt.Fprintf(&sb, "  Property: %s [%s]\n", tx.Property.Title, tx.PropertyID)
	fmt.Fprintf(&sb, "  Buyer: %s | Seller: %s\n", tx.BuyerID, tx.SellerID)
	fmt.Fprintf(&sb, "  Amount: %s %s via %s\n", tx.Amount.StringFixed(2), tx.Currency, tx.PaymentMethod)
	fmt.Fprintf(&sb, "  Fees: %s (platform %s, processing %s)\n",
		tx.Fees.TotalFees.StringFixed(2), tx.Fees.PlatformFee.StringFixed(2), tx.Fees.ProcessingFee.StringFixed(2))
	fmt.Fprintf(&sb, "  Status: %s", tx.Status)
	if next := escrow.NextStatuses(tx.Status); len(next) > 0 {
		fmt.Fprintf(&sb, " (next: %s)", joinStatuses(next, ", "))
	}
	sb.WriteString("\n")
	if d := tx.Dispute; d != nil {
		fmt.Fprintf(&sb, "  Dispute: %s", d.Reason)
		if d.IsResolved() {
			fmt.Fprintf(&sb, " [resolved: %s]", d.Resolution)
		}
		sb.WriteString("\n")
	}
	if len(tx.Documents) > 0 {
		fmt.Fprintf(&sb, "  Documents: %d\n", len(tx.Documents))
	}
	return sb.String()
}

func joinStatuses(statuses []escrow.Status, sep string) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, sep)
}
