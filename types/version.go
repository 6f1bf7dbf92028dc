package types

// Version is the canonical project version, reported by `concierge version`
// and sent as the client version header on backend requests.
const Version = "0.3.0"
