package domain

// CartLine is one selected listing in a buyer's cart.
type CartLine struct {
	ItemID    string `json:"item_id"`
	VendorID  string `json:"vendor_id"`
	UnitPrice Amount `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// SessionLine is what leaves the cart at checkout: item and quantity, never a price.
type SessionLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Cart keeps lines in insertion order. A line with quantity below 1 is never retained.
type Cart struct {
	lines []CartLine
}

func NewCart() *Cart {
	return &Cart{}
}

func (c *Cart) Add(itemID, vendorID string, unitPrice Amount) {
	for i := range c.lines {
		if c.lines[i].ItemID == itemID {
			c.lines[i].Quantity++
			return
		}
	}
	c.lines = append(c.lines, CartLine{
		ItemID:    itemID,
		VendorID:  vendorID,
		UnitPrice: unitPrice,
		Quantity:  1,
	})
}

// Remove decrements the line for itemID and drops it once the quantity falls below 1.
// It reports whether the item was in the cart.
func (c *Cart) Remove(itemID string) bool {
	for i := range c.lines {
		if c.lines[i].ItemID != itemID {
			continue
		}
		c.lines[i].Quantity--
		if c.lines[i].Quantity < 1 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		}
		return true
	}
	return false
}

func (c *Cart) Total() Amount {
	var total Amount
	for _, l := range c.lines {
		total += l.UnitPrice * Amount(l.Quantity)
	}
	return total
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Snapshot() []SessionLine {
	out := make([]SessionLine, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, SessionLine{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}
