package ai

// Tool names the assistant may call.
const (
	ToolGenerateQuote     = "generate_quote"
	ToolCheckAvailability = "check_availability"
)

// GenerateQuoteInput is the parsed input of a generate_quote tool call.
type GenerateQuoteInput struct {
	ServiceKey       string         `json:"service_key"`
	CustomerName     string         `json:"customer_name"`
	CustomerEmail    string         `json:"customer_email"`
	CustomerPhone    string         `json:"customer_phone"`
	CustomerLocation string         `json:"customer_location"`
	PropertyDetails  map[string]any `json:"property_details"`
}

// CheckAvailabilityInput is the parsed input of a check_availability tool
// call.
type CheckAvailabilityInput struct {
	Days int `json:"days"`
}

// ToolDefinitions returns the tools offered to the model on every turn.
func ToolDefinitions() []Tool {
	return []Tool{
		{
			Name: ToolGenerateQuote,
			Description: "Generate a price quote for a customer. Call this when you have gathered " +
				"the service type, property details, customer location, and customer contact info.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service_key": map[string]any{
						"type":        "string",
						"description": "The service key (e.g. manure_removal, can_service, junk_removal, shavings_delivery, arena_drag, paddock_cleanup)",
					},
					"customer_name":  map[string]any{"type": "string", "description": "Customer full name"},
					"customer_email": map[string]any{"type": "string", "description": "Customer email"},
					"customer_phone": map[string]any{"type": "string", "description": "Customer phone number"},
					"customer_location": map[string]any{
						"type":        "string",
						"description": "Service area (e.g. wellington, loxahatchee, royal_palm_beach, west_palm_beach, palm_beach_gardens)",
					},
					"property_details": map[string]any{
						"type":        "object",
						"description": "Property details like loads, cans, estimated_tons, yards, sqft, frequency, notes",
					},
				},
				"required": []string{"service_key", "customer_name", "customer_email", "customer_phone", "customer_location"},
			},
		},
		{
			Name: ToolCheckAvailability,
			Description: "Check available dates for scheduling a service. Call this when a customer " +
				"wants to schedule.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days": map[string]any{
						"type":        "number",
						"description": "Number of days to check ahead (default 30)",
					},
				},
				"required": []string{},
			},
		},
	}
}
