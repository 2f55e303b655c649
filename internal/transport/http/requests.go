package httptransport

// growRequest creates a new cell owned by the calling address.
type growRequest struct {
	Identity  string `json:"identity"`
	Endowment uint64 `json:"endowment"`
}

// registerRequest adds or updates an organelle in a cell's registry.
type registerRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Replicable bool   `json:"replicable"`
}

// tokenRequest exchanges a registered caller secret for a bearer token.
type tokenRequest struct {
	Address string `json:"address"`
	Secret  string `json:"secret"`
}

// depositRequest funds a cell's custody.
type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// withdrawRequest moves funds out of a cell's custody.
type withdrawRequest struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}
