package order

// UnknownRecipient is the group key for rows without a `to` value.
const UnknownRecipient = "Unknown Recipient"

// Group is every row addressed to one recipient, in input order.
type Group struct {
	Recipient string `json:"recipient"`
	Rows      []Row  `json:"rows"`
}

// GroupRows partitions rows by recipient. Groups appear in order of each
// recipient's first row; rows keep their relative order inside a group.
func GroupRows(rows []Row) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, row := range rows {
		key := row.To
		if key == "" {
			key = UnknownRecipient
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Recipient: key})
		}
		groups[i].Rows = append(groups[i].Rows, row)
	}
	return groups
}

// DisplayName returns the first non-empty row name, or the recipient.
func (g Group) DisplayName() string {
	for _, row := range g.Rows {
		if row.Name != "" {
			return row.Name
		}
	}
	return g.Recipient
}

// Find returns the group for recipient.
func Find(groups []Group, recipient string) (Group, bool) {
	for _, g := range groups {
		if g.Recipient == recipient {
			return g, true
		}
	}
	return Group{}, false
}
