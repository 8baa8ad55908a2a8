package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the escrow MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Fetch one escrow transaction: property, parties, amount, fees, status, "+
			"dispute and documents. Only participants and admins can read a transaction."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Transaction id (UUID)")),
)

var ToolListTransactions = mcp.NewTool("list_transactions",
	mcp.WithDescription(
		"List the escrow transactions you take part in, newest first. "+
			"Admins see every transaction."),
	mcp.WithString("status",
		mcp.Description("Only transactions in this status"),
		mcp.Enum("initiated", "pending", "active", "completed", "cancelled", "disputed", "refunded")),
	mcp.WithString("role",
		mcp.Description("Only transactions where you are the buyer or the seller"),
		mcp.Enum("buyer", "seller")),
	mcp.WithNumber("page",
		mcp.Description("Page number, starting at 1")),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)")),
)

var ToolUpdateStatus = mcp.NewTool("update_status",
	mcp.WithDescription(
		"Move a transaction to a new status. Allowed moves: initiated->pending|cancelled, "+
			"pending->active|cancelled, active->completed|disputed|cancelled. "+
			"Only the seller or an admin can complete; only buyer or seller can dispute."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Transaction id (UUID)")),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("Target status"),
		mcp.Enum("pending", "active", "completed", "cancelled", "disputed")),
	mcp.WithString("notes",
		mcp.Description("Optional note recorded on the timeline")),
)

var ToolFileDispute = mcp.NewTool("file_dispute",
	mcp.WithDescription(
		"File a dispute on a pending or active transaction. Only the buyer or seller can file, "+
			"and only once. An administrator then resolves it."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Transaction id (UUID)")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Short reason, e.g. 'Title documents do not match'")),
	mcp.WithString("description",
		mcp.Description("Longer explanation for the administrator")),
)

var ToolGetTimeline = mcp.NewTool("get_timeline",
	mcp.WithDescription(
		"Show the audit trail of a transaction: every status change, dispute and document upload, "+
			"with who did it and when."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Transaction id (UUID)")),
)

var ToolGetStatistics = mcp.NewTool("get_statistics",
	mcp.WithDescription(
		"Platform-wide escrow statistics: totals by status and monthly volume and fees. "+
			"Requires an admin token."),
)
