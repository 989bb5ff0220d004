package shop

// ValidateOrderInput checks the client-supplied order fields.
func ValidateOrderInput(customerName string, date Date) error {
	if customerName == "" {
		return ValidationError("customerName is required")
	}
	if date.IsZero() {
		return ValidationError("orderDate is required")
	}
	return nil
}

// ValidateLineInput checks the client-supplied line-item fields.
func ValidateLineInput(stockItemID string, quantity int) error {
	if stockItemID == "" {
		return ValidationError("stockItemId is required")
	}
	if quantity <= 0 {
		return ValidationError("quantity must be a positive integer")
	}
	return nil
}
