package server

// Action is the typed command set accepted by the sync endpoints. Dispatch
// is an exhaustive switch; anything outside this set is a 400.
type Action string

const (
	ActionGetAuthURL          Action = "get_auth_url"
	ActionExchangeCode        Action = "exchange_code"
	ActionGetConnectionStatus Action = "get_connection_status"
	ActionStartSync           Action = "start_sync"
	ActionPauseSync           Action = "pause_sync"
)

type commandRequest struct {
	Action      Action `json:"action" binding:"required"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}
