package gameplay

// Client to server message ids.
const (
	MsgGetCredits uint32 = 8   // @H
	MsgPing       uint32 = 196 // CD
	MsgSSOTicket  uint32 = 204 // CL
	MsgSetMotto   uint32 = 315 // D{
)

// Server to client message ids.
const (
	MsgAuthenticationOK uint32 = 3   // @C
	MsgCreditBalance    uint32 = 6   // @F
	MsgError            uint32 = 33  // @a
	MsgPong             uint32 = 197 // CE
	MsgMottoUpdated     uint32 = 266 // DJ
)

// Error codes carried by MsgError.
const (
	ErrorLoginFailed int32 = 1
	ErrorNotLoggedIn int32 = 2
	ErrorBadRequest  int32 = 3
)

// MaxMottoLength is the longest motto accepted, in runes.
const MaxMottoLength = 38
