// Package repository implements data persistence using PostgreSQL.
// This file centralizes column lists so INSERT, SELECT, and scan order
// cannot drift apart between queries.
package repository

import (
	"strconv"
	"strings"
)

// Column order here must match the scan order in the corresponding
// repository and the schema in internal/database/migrations.

// QuoteColumns defines the columns for the quotes table.
var QuoteColumns = TableColumns{
	TableName: "quotes",
	Columns: []string{
		"id",
		"quote_number",
		"status",
		"customer_name",
		"customer_email",
		"customer_phone",
		"address",
		"service_key",
		"property_details",
		"pricing",
		"requires_site_visit",
		"source",
		"chat_session_id",
		"hubspot_contact_id",
		"hubspot_deal_id",
		"expires_at",
		"created_at",
		"updated_at",
	},
}

// BookingColumns defines the columns for the bookings table.
var BookingColumns = TableColumns{
	TableName: "bookings",
	Columns: []string{
		"id",
		"booking_number",
		"quote_id",
		"status",
		"customer_name",
		"customer_email",
		"customer_phone",
		"address",
		"service_key",
		"scheduled_date",
		"time_slot",
		"notes",
		"hubspot_deal_id",
		"created_at",
		"updated_at",
	},
}

// ChatSessionColumns defines the columns for the chat_sessions table.
var ChatSessionColumns = TableColumns{
	TableName: "chat_sessions",
	Columns: []string{
		"id",
		"status",
		"messages",
		"extracted_service",
		"extracted_location",
		"extracted_details",
		"quote_id",
		"created_at",
		"updated_at",
	},
}

// ServiceColumns defines the columns for the services table.
var ServiceColumns = TableColumns{
	TableName: "services",
	Columns: []string{
		"id",
		"key",
		"name",
		"description",
		"unit",
		"base_rate",
		"minimum_charge",
		"requires_site_visit",
		"recurring",
		"frequency_options",
		"active",
		"display_order",
		"created_at",
		"updated_at",
	},
}

// TableColumns provides helper methods for generating SQL fragments.
type TableColumns struct {
	TableName string
	Columns   []string
}

// Select returns a comma-separated list of columns for SELECT queries.
// Example: "id, quote_number, status"
func (tc TableColumns) Select() string {
	return strings.Join(tc.Columns, ", ")
}

// SelectPrefixed returns columns prefixed with table name for joins.
// Example: "quotes.id, quotes.quote_number"
func (tc TableColumns) SelectPrefixed() string {
	prefixed := make([]string, len(tc.Columns))
	for i, col := range tc.Columns {
		prefixed[i] = tc.TableName + "." + col
	}
	return strings.Join(prefixed, ", ")
}

// Placeholders returns numbered placeholders for the columns.
// Example: "$1, $2, $3" for 3 columns
func (tc TableColumns) Placeholders() string {
	placeholders := make([]string, len(tc.Columns))
	for i := range tc.Columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(placeholders, ", ")
}

// InsertColumns returns a comma-separated list of columns for INSERT queries.
// Same as Select() but explicitly named for clarity.
func (tc TableColumns) InsertColumns() string {
	return tc.Select()
}

// Count returns the number of columns.
func (tc TableColumns) Count() int {
	return len(tc.Columns)
}

// Without returns a new TableColumns excluding the specified columns.
func (tc TableColumns) Without(exclude ...string) TableColumns {
	excludeMap := make(map[string]bool, len(exclude))
	for _, col := range exclude {
		excludeMap[col] = true
	}

	filtered := make([]string, 0, len(tc.Columns))
	for _, col := range tc.Columns {
		if !excludeMap[col] {
			filtered = append(filtered, col)
		}
	}

	return TableColumns{
		TableName: tc.TableName,
		Columns:   filtered,
	}
}
